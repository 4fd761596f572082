package transformer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/fastsim/internal/store"
)

// TemporaryViewConfig configures NewTemporaryView.
type TemporaryViewConfig struct {
	OutputTable string
	Columns     []string
	Queries     []string
	Persistent  bool
}

// TemporaryViewStage materializes the result of one or more SELECT queries
// into a table. The table is created if missing and emptied before the
// queries are inserted, so each run replaces its content.
type TemporaryViewStage struct {
	base
	cfg TemporaryViewConfig
}

// NewTemporaryView builds a temporary view stage.
func NewTemporaryView(s *store.Store, cfg TemporaryViewConfig, opts ...Option) (*TemporaryViewStage, error) {
	if err := checkStore(TemporaryView, s); err != nil {
		return nil, err
	}
	if err := checkTable(TemporaryView, "output_table", cfg.OutputTable); err != nil {
		return nil, err
	}
	if err := checkIdents(TemporaryView, "columns", cfg.Columns, true); err != nil {
		return nil, err
	}
	if len(cfg.Queries) == 0 {
		return nil, configErr(TemporaryView, "query", "query text is empty")
	}
	for _, q := range cfg.Queries {
		if err := checkQuery(TemporaryView, "query", q); err != nil {
			return nil, err
		}
	}

	v := &TemporaryViewStage{cfg: cfg}
	v.init(TemporaryView, s, applyOptions(opts))
	return v, nil
}

func (v *TemporaryViewStage) Execute(ctx context.Context) error {
	db, err := v.handle()
	if err != nil {
		return err
	}

	temp := "TEMPORARY "
	if v.cfg.Persistent {
		temp = ""
	}
	cols := columnList(v.cfg.Columns)

	return v.inTx(ctx, db, "materialize", func(tx *sql.Tx) error {
		create := fmt.Sprintf("CREATE %sTABLE IF NOT EXISTS %s (%s)", temp, v.cfg.OutputTable, cols)
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return v.fault("create table", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+v.cfg.OutputTable); err != nil {
			return v.fault("empty table", err)
		}
		for i, q := range v.cfg.Queries {
			insert := fmt.Sprintf("INSERT INTO %s (%s) %s", v.cfg.OutputTable, cols, q)
			if _, err := tx.ExecContext(ctx, insert); err != nil {
				return v.fault(fmt.Sprintf("insert query %d", i), err)
			}
		}
		return nil
	})
}

// StoreEditorStage runs SQL statements in one transaction. Any failure
// rolls back every statement of the run.
type StoreEditorStage struct {
	base
	statements []string
}

// NewStoreEditor builds a store editor stage.
func NewStoreEditor(s *store.Store, statements []string, opts ...Option) (*StoreEditorStage, error) {
	if err := checkStore(StoreEditor, s); err != nil {
		return nil, err
	}
	if len(statements) == 0 {
		return nil, configErr(StoreEditor, "statements", "no statements given")
	}
	for _, stmt := range statements {
		if err := checkQuery(StoreEditor, "statements", stmt); err != nil {
			return nil, err
		}
	}
	e := &StoreEditorStage{statements: append([]string(nil), statements...)}
	e.init(StoreEditor, s, applyOptions(opts))
	return e, nil
}

func (e *StoreEditorStage) Execute(ctx context.Context) error {
	db, err := e.handle()
	if err != nil {
		return err
	}
	return e.inTx(ctx, db, "edit", func(tx *sql.Tx) error {
		for i, stmt := range e.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return e.fault(fmt.Sprintf("statement %d", i), err)
			}
		}
		return nil
	})
}

// StoreCleanerStage deletes every row of every user table in the main and
// temp schemas. Table definitions are left untouched.
type StoreCleanerStage struct {
	base
}

// NewStoreCleaner builds a store cleaner stage.
func NewStoreCleaner(s *store.Store, opts ...Option) (*StoreCleanerStage, error) {
	if err := checkStore(StoreCleaner, s); err != nil {
		return nil, err
	}
	c := &StoreCleanerStage{}
	c.init(StoreCleaner, s, applyOptions(opts))
	return c, nil
}

func (c *StoreCleanerStage) Execute(ctx context.Context) error {
	db, err := c.handle()
	if err != nil {
		return err
	}

	var cleared int
	err = c.inTx(ctx, db, "clean", func(tx *sql.Tx) error {
		tables, err := qualifiedTables(ctx, tx)
		if err != nil {
			return c.fault("list tables", err)
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return c.fault("delete "+t, err)
			}
		}
		cleared = len(tables)
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Debug("event store cleaned", "tables", cleared)
	return nil
}

// qualifiedTables lists user tables as schema-qualified quoted names.
func qualifiedTables(ctx context.Context, q store.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT 'main', name FROM main.sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		UNION ALL
		SELECT 'temp', name FROM temp.sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf(`%s."%s"`, schema, strings.ReplaceAll(name, `"`, `""`)))
	}
	return out, rows.Err()
}

// ConnectionRefreshStage replaces the store's native connection with a
// fresh one to the same database. Temporary tables do not survive it.
type ConnectionRefreshStage struct {
	base
}

// NewConnectionRefresh builds a connection refresh stage.
func NewConnectionRefresh(s *store.Store, opts ...Option) (*ConnectionRefreshStage, error) {
	if err := checkStore(ConnectionRefresh, s); err != nil {
		return nil, err
	}
	r := &ConnectionRefreshStage{}
	r.init(ConnectionRefresh, s, applyOptions(opts))
	return r, nil
}

func (r *ConnectionRefreshStage) Execute(ctx context.Context) error {
	if _, err := r.handle(); err != nil {
		return err
	}
	if err := r.store.Refresh(ctx); err != nil {
		return r.fault("refresh", err)
	}
	return nil
}
