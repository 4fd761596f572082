package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary holds descriptive statistics of one numeric column.
// NULL values are skipped; Count is the number of non-NULL values.
type ColumnSummary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Describe summarizes the given columns of table.
// If columns is empty every column of the table is summarized.
func Describe(ctx context.Context, q Querier, table string, columns []string) ([]ColumnSummary, error) {
	if len(columns) == 0 {
		cols, err := tableColumns(ctx, q, table)
		if err != nil {
			return nil, err
		}
		columns = cols
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(table))

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	data := make([][]float64, len(columns))
	vals := make([]sql.NullFloat64, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("describe %s: %w", table, err)
		}
		for i, v := range vals {
			if v.Valid {
				data[i] = append(data[i], v.Float64)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}

	out := make([]ColumnSummary, len(columns))
	for i, c := range columns {
		out[i] = summarize(c, data[i])
	}
	return out, nil
}

func summarize(column string, x []float64) ColumnSummary {
	s := ColumnSummary{Column: column, Count: len(x)}
	if len(x) == 0 {
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(x)
	s.Max = floats.Max(x)

	sort.Float64s(x)
	s.Median = stat.Quantile(0.5, stat.Empirical, x, nil)
	return s
}

func tableColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	return cols, nil
}
