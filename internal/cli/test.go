package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/fluxgear/internal/harness"
	"github.com/roach88/fluxgear/internal/metrics"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update  bool   // regenerate golden files
	Filter  string // scenario filter (glob pattern on the file name)
	Golden  string // golden directory; default <scenario dir>/../golden
	Metrics bool   // report engine metrics across all scenarios
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "mismatch", "updated" or empty
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
	Metrics   []metrics.Sample `json:"metrics,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run conformance scenarios",
		Long: `Run scenario files through the conformance harness.

Each scenario compiles its programs, drives a fresh engine step by step
and checks its assertions. When a golden file named after the scenario
exists, the canonical trace must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  fluxgear test ./scenarios
  fluxgear test ./scenarios --filter "cart_*"
  fluxgear test ./scenarios --update
  fluxgear test ./scenarios/checkout.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default: golden/ beside the scenarios directory)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report engine metrics")

	return cmd
}

func runTests(opts *TestOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var files []string
	for _, arg := range args {
		found, err := harness.FindScenarios(arg)
		if err != nil {
			return NewExitError(ExitCommandError, err.Error())
		}
		filtered, err := filterScenarios(found, opts.Filter)
		if err != nil {
			return NewExitError(ExitCommandError, err.Error())
		}
		files = append(files, filtered...)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	runOpts := harness.Options{Logger: formatter.Logger()}
	var reg *prometheus.Registry
	if opts.Metrics {
		reg = prometheus.NewRegistry()
		c, err := metrics.NewCollector(reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create metrics", err)
		}
		runOpts.Metrics = c
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}

	for _, file := range files {
		if ctx := cmd.Context(); ctx != nil && ctx.Err() != nil {
			return WrapExitError(ExitCommandError, "interrupted", ctx.Err())
		}
		formatter.VerboseLog("Running %s", file)

		res := runScenario(file, opts, runOpts)
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if opts.Format != "json" {
			printScenario(cmd, res)
		}
	}

	if reg != nil {
		samples, err := metrics.Snapshot(reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
		result.Metrics = samples
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// filterScenarios keeps files whose base name, without extension, matches
// the glob pattern.
func filterScenarios(files []string, filter string) ([]string, error) {
	if filter == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// runScenario loads, runs and golden-checks one scenario file.
func runScenario(file string, opts *TestOptions, runOpts harness.Options) ScenarioResult {
	res := ScenarioResult{Name: filepath.Base(file), Path: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	run, err := harness.RunWithOptions(scenario, runOpts)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}
	res.Pass = run.Pass
	res.Errors = run.Errors

	snap := harness.Snapshot{
		ScenarioName: scenario.Name,
		Program:      scenario.Program,
		Trace:        run.Trace,
		FinalState:   run.State,
	}
	data, err := snap.Marshal()
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("golden snapshot: %v", err))
		return res
	}

	goldenPath := goldenFilePath(file, opts.Golden, scenario.Name)

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("failed to create golden directory: %v", err))
			return res
		}
		if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("failed to write golden file: %v", err))
			return res
		}
		res.Golden = "updated"
		return res
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		// No golden file - assertions alone decide.
		return res
	}
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return res
	}

	if bytes.Equal(want, data) {
		res.Golden = "match"
		return res
	}
	res.Golden = "mismatch"
	res.Pass = false
	res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
	return res
}

// goldenFilePath returns dir/<name>.golden, where dir defaults to a golden
// directory next to the scenario's directory (testdata/scenarios/x.yaml
// pairs with testdata/golden/<name>.golden).
func goldenFilePath(scenarioFile, dir, name string) string {
	if dir == "" {
		dir = filepath.Join(filepath.Dir(filepath.Dir(scenarioFile)), "golden")
	}
	return filepath.Join(dir, name+".golden")
}

func printScenario(cmd *cobra.Command, res ScenarioResult) {
	w := cmd.OutOrStdout()
	if res.Pass {
		suffix := ""
		if res.Golden == "updated" {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "✓ %s%s\n", res.Name, suffix)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	if len(result.Metrics) > 0 {
		fmt.Fprintln(w)
		for _, s := range result.Metrics {
			fmt.Fprintf(w, "  %s{%s} %g\n", s.Name, s.Label, s.Value)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
