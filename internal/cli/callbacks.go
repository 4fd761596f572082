package cli

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/roach88/fastsim/internal/config"
	"github.com/roach88/fastsim/internal/engine"
	"github.com/roach88/fastsim/internal/store"
)

// BuiltinCallbacks returns the callbacks pipeline files can name.
//
//	row_counts  logs the row count of every table
//	describe    logs column statistics of output_table, restricted to
//	            outputs when given
//
// Callbacks run on a scoped connection, so TEMPORARY tables are not visible
// to them; describe persistent tables only.
func BuiltinCallbacks(logger *slog.Logger) engine.Callbacks {
	return engine.Callbacks{
		"row_counts": func(sc config.Stage) (engine.Callback, error) {
			return rowCounts(logger.With("stage", sc.Name)), nil
		},
		"describe": func(sc config.Stage) (engine.Callback, error) {
			if sc.OutputTable == "" {
				return nil, errors.New("describe callback needs output_table")
			}
			return describeTable(logger.With("stage", sc.Name), sc.OutputTable, sc.Outputs), nil
		},
	}
}

func rowCounts(logger *slog.Logger) engine.Callback {
	return func(ctx context.Context, db *sql.DB) error {
		tables, err := store.Tables(ctx, db)
		if err != nil {
			return err
		}
		for _, t := range tables {
			n, err := store.CountRows(ctx, db, t)
			if err != nil {
				return err
			}
			logger.Info("table rows", "table", t, "rows", n)
		}
		return nil
	}
}

func describeTable(logger *slog.Logger, table string, columns []string) engine.Callback {
	return func(ctx context.Context, db *sql.DB) error {
		summaries, err := store.Describe(ctx, db, table, columns)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			logger.Info("column summary",
				"table", table,
				"column", s.Column,
				"count", s.Count,
				"mean", s.Mean,
				"stddev", s.StdDev,
				"min", s.Min,
				"max", s.Max,
				"median", s.Median,
			)
		}
		return nil
	}
}
