package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fluxgear/internal/compiler"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/rules"
)

// ErrCodeWriteFailed reports a failure writing the --output file.
const ErrCodeWriteFailed = "E030"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // output file path
	Program string // compile only this program
}

// CompiledProgram is a program with its content digest.
type CompiledProgram struct {
	Digest  string         `json:"digest"`
	Program *rules.Program `json:"program"`
}

// CompilationResult holds the compiled programs.
type CompilationResult struct {
	EngineVersion string            `json:"engine_version"`
	Programs      []CompiledProgram `json:"programs"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <programs-dir>",
		Short: "Compile CUE programs to JSON",
		Long: `Compile CUE programs to their JSON form.

Each program is listed with a digest of its compiled content, so two
builds of the same rules can be compared without diffing the CUE.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&opts.Program, "program", "p", "", "compile only this program")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	programs := loadResult.Programs
	if opts.Program != "" {
		prog, err := loadResult.Program(opts.Program)
		if err != nil {
			return outputCompileErrors(formatter, []error{err})
		}
		programs = []*rules.Program{prog}
	}

	result := &CompilationResult{EngineVersion: ir.EngineVersion}
	for _, prog := range programs {
		formatter.VerboseLog("Compiling program: %s", prog.Name)
		digest, err := ir.Digest(ir.DomainProgram, prog)
		if err != nil {
			return outputCompileError(formatter, compiler.ErrCodeGeneric, fmt.Sprintf("digest %s: %v", prog.Name, err))
		}
		result.Programs = append(result.Programs, CompiledProgram{Digest: digest, Program: prog})
	}

	if opts.Output != "" {
		if err := writeProgramsToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d program(s)\n\n", len(result.Programs))
	for _, cp := range result.Programs {
		p := cp.Program
		fmt.Fprintf(w, "  %s: %d message(s), %d transform(s), %d reduction(s), %d effect(s)\n",
			p.Name, len(p.Messages), len(p.Transforms), len(p.Reductions), len(p.Effects))
		fmt.Fprintf(w, "    digest %s\n", cp.Digest[:16])
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote compiled programs to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs every load and compile error.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	failure := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := writeJSON(formatter.Writer, CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return failure
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.MapFieldToErrorCode(compileErr.Field, compileErr.Message), compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// writeProgramsToFile writes the compilation result as indented JSON.
func writeProgramsToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling programs: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
