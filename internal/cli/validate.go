package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fluxgear/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Programs []string                   `json:"programs,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []Warning                  `json:"warnings,omitempty"`
}

// Warning is a non-fatal finding: an effect cycle or an unused message.
type Warning struct {
	Program string   `json:"program"`
	Kind    string   `json:"kind"` // "cycle" or "unused"
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <programs-dir>",
		Short: "Validate programs and report effect cycles",
		Long: `Validate CUE programs without running them.

Compiles every program block, runs the schema and reference checks and
reports effect cycles and unused messages as warnings. Warnings never
fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result, err := ValidateDir(dir, formatter)
	if err != nil {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error())
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// ValidateDir loads every program in dir and validates it. The returned
// error is set only when nothing could be loaded at all.
func ValidateDir(dir string, formatter *OutputFormatter) (*ValidationResult, error) {
	loadResult, loadErrors := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	result := &ValidationResult{Valid: true}

	for _, err := range loadErrors {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			result.Errors = append(result.Errors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
			continue
		}
		result.Errors = append(result.Errors, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    compiler.ErrCodeGeneric,
		})
	}

	for _, prog := range loadResult.Programs {
		formatter.VerboseLog("Validating program: %s", prog.Name)
		result.Programs = append(result.Programs, prog.Name)

		result.Errors = append(result.Errors, compiler.Validate(prog)...)

		for _, w := range compiler.AnalyzeCycles(prog) {
			result.Warnings = append(result.Warnings, Warning{
				Program: prog.Name,
				Kind:    "cycle",
				Message: w.Message,
				Path:    w.Path,
			})
		}
		for _, name := range compiler.UnusedMessages(prog) {
			result.Warnings = append(result.Warnings, Warning{
				Program: prog.Name,
				Kind:    "unused",
				Message: fmt.Sprintf("message %s is declared but no rule uses it", name),
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// lineOf extracts the line number from a load error's CUE position.
func lineOf(e *compiler.LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %d program(s) valid\n", len(result.Programs))
	printWarnings(formatter, result.Warnings)
	return nil
}

func printWarnings(formatter *OutputFormatter, warnings []Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(formatter.Writer)
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning [%s] %s: %s\n", w.Kind, w.Program, w.Message)
	}
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result *ValidationResult) error {
	errs := result.Errors
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		if err := writeJSON(formatter.Writer, CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", err.Error())
	}
	printWarnings(formatter, result.Warnings)

	return failure
}
