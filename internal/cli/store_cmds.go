package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/transformer"
)

// StoreOptions holds flags shared by the store inspection commands.
type StoreOptions struct {
	*RootOptions
	Database string
	Query    string
	Table    string
	Columns  []string
}

func addDatabaseFlag(cmd *cobra.Command, opts *StoreOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event store (required)")
	_ = cmd.MarkFlagRequired("db")
}

// openStore opens the store named by --db, reporting failures through f.
func openStore(f *OutputFormatter, path string) (*store.Store, error) {
	st, err := store.Open(path, store.WithLogger(f.Logger()))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open event store", err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the result of a query as a table",
		Long: `Run a SELECT query against an event store and print the rows.

Example:
  fastsim dump --db events.db --query "SELECT * FROM MCVertices"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	addDatabaseFlag(cmd, opts)
	cmd.Flags().StringVar(&opts.Query, "query", "", "SQL query to run (required)")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runDump(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	db, err := st.Handle()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "event store unavailable", err)
	}
	out, err := store.DumpTable(commandContext(cmd), db, opts.Query)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "query failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"query": opts.Query, "table": out})
	}
	fmt.Fprint(formatter.Writer, out)
	return nil
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print column statistics of a table",
		Long: `Print count, mean, standard deviation, min, max and median of numeric
columns. NULL values are skipped. Without --columns every column is described.

Example:
  fastsim describe --db events.db --table MCVertices --columns x,y,z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, cmd)
		},
	}

	addDatabaseFlag(cmd, opts)
	cmd.Flags().StringVar(&opts.Table, "table", "", "table to describe (required)")
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "columns to describe (default all)")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runDescribe(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	db, err := st.Handle()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "event store unavailable", err)
	}
	summaries, err := store.Describe(commandContext(cmd), db, opts.Table, opts.Columns)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "describe failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}
	w := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "column\tcount\tmean\tstddev\tmin\tmax\tmedian\t")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t\n",
			s.Column, humanize.Comma(int64(s.Count)), s.Mean, s.StdDev, s.Min, s.Max, s.Median)
	}
	return w.Flush()
}

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete every row of an event store",
		Long: `Delete every row of every table of an event store. Table definitions
are kept.

Example:
  fastsim clean --db events.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(opts, cmd)
		},
	}

	addDatabaseFlag(cmd, opts)
	return cmd
}

func runClean(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	cleaner, err := transformer.NewStoreCleaner(st, transformer.WithLogger(formatter.Logger()))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "failed to build cleaner", err)
	}
	defer cleaner.Close()

	if err := cleaner.Execute(commandContext(cmd)); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStorage, "clean failed", err)
	}
	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"cleaned": opts.Database})
	}
	fmt.Fprintf(formatter.Writer, "✓ Cleaned %s\n", opts.Database)
	return nil
}
