package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/headless"
	"github.com/roach88/kiln/internal/module"
)

// ValidationIssue is one problem found in the module graph.
type ValidationIssue struct {
	Code    string      `json:"code"`
	Module  string      `json:"module"`
	Message string      `json:"message"`
	Path    []module.ID `json:"path,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Title  string            `json:"title"`
	Order  []string          `json:"order,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a config and its module graph",
		Long: `Validate a config file without running anything.

The file is checked against the config schema, then the enabled modules
are registered, the config's extra "requires" edges are added, and the
dependency graph is analyzed: every missing requirement (E101) and every
cycle (E102) is reported. On success the construction order is printed.
No module is constructed.

  # kiln.yaml
  modules: [window, renderer]
  requires:
    window: [renderer]   # renderer already requires window: E102`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(path)
	if err != nil {
		return reportConfigError(formatter, err)
	}
	formatter.VerboseLog("Config %s: %d module(s), %d layer(s)", path, len(cfg.Modules), len(cfg.Layers))

	reg, err := buildRegistry(cfg, headless.NewWindow(cfg.Width, cfg.Height), headless.NewRenderer())
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid config", err)
	}

	issues := analyzeGraph(reg)
	if len(issues) > 0 {
		return outputValidationErrors(formatter, cfg.Title, issues)
	}

	order, err := module.Order(reg)
	if err != nil {
		// analyzeGraph found nothing, so this is unexpected
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "module order", err)
	}
	return outputValidateSuccess(formatter, ValidationResult{
		Valid: true,
		Title: cfg.Title,
		Order: idStrings(order),
	})
}

// analyzeGraph lists every missing requirement and every cycle.
func analyzeGraph(reg *module.Registry) []ValidationIssue {
	var issues []ValidationIssue

	err := module.Validate(reg)
	for _, e := range unjoin(err) {
		var me *module.Error
		if !errors.As(e, &me) {
			issues = append(issues, ValidationIssue{Code: ErrCodeGeneric, Message: e.Error()})
			continue
		}
		issue := ValidationIssue{Module: string(me.Module), Message: me.Error(), Path: me.Path}
		switch me.Code {
		case module.ErrCodeCircularDependency:
			issue.Code = ErrCodeCycle
		case module.ErrCodeUnknownModule:
			issue.Code = ErrCodeMissingModule
		default:
			issue.Code = ErrCodeGeneric
		}
		issues = append(issues, issue)
	}
	return issues
}

// unjoin flattens an errors.Join tree one level.
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// outputValidateSuccess outputs the construction order.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s: config valid\n", result.Title)
	fmt.Fprintln(formatter.Writer, "Construction order:")
	for i, id := range result.Order {
		fmt.Fprintf(formatter.Writer, "  %d. %s\n", i+1, id)
	}
	return nil
}

// outputValidationErrors outputs every graph problem.
func outputValidationErrors(formatter *OutputFormatter, title string, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Title:  title,
				Errors: issues,
			},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Code, issue.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
