package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fastsim/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Stages int      `json:"stages"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline.yml>",
		Short: "Validate a pipeline file without running it",
		Long: `Validate a pipeline file against the schema and print the resolved
pipeline, environment overrides included, as YAML.

Stage options are not checked against the event store and plugin
libraries are not loaded; run does that.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		return outputValidationError(formatter, err)
	}

	if err := checkCallbacks(path, cfg); err != nil {
		return outputValidationError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Stages: len(cfg.Stages)})
	}

	out, err := config.Marshal(cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to render pipeline", err)
	}
	fmt.Fprintf(formatter.Writer, "# ✓ %s valid, %d stage(s)\n", path, len(cfg.Stages))
	_, err = formatter.Writer.Write(out)
	return err
}

// checkCallbacks rejects callback stages naming no built-in callback.
func checkCallbacks(path string, cfg *config.Pipeline) error {
	known := BuiltinCallbacks(nil)
	var issues []string
	for i, s := range cfg.Stages {
		if !s.IsCallback() {
			continue
		}
		if _, ok := known[s.Callback]; !ok {
			issues = append(issues, fmt.Sprintf("stages.%d: unknown callback %q (known: %s)",
				i, s.Callback, strings.Join(known.Names(), ", ")))
		}
	}
	if len(issues) > 0 {
		return &config.ValidationError{Path: path, Issues: issues}
	}
	return nil
}

func outputValidationError(formatter *OutputFormatter, err error) error {
	var issues []string
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		issues = ve.Issues
	} else {
		issues = []string{err.Error()}
	}

	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeConfig, issues[0], ValidationResult{Valid: false, Errors: issues})
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		fmt.Fprintln(formatter.Writer)
		for _, issue := range issues {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeConfig, issue)
		}
	}
	// Validation failures = exit code 1
	return WrapExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)), err)
}
