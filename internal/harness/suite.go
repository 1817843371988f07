package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios expands path into scenario files. A file is returned as is;
// a directory is searched recursively for *.yaml and *.yml files, sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents one failed scenario.
type ScenarioFailure struct {
	Scenario string   `json:"scenario,omitempty"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// RunSuite loads and runs every scenario file in paths. It stops early only
// when ctx is cancelled; load and run failures are recorded per scenario.
//
// For each path:
// 1. Load the scenario (spec paths resolve against its directory)
// 2. Run it via RunWithOptions
// 3. Collect the result
func RunSuite(ctx context.Context, paths []string, opts Options) (*SuiteResult, error) {
	result := &SuiteResult{}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail("", path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := RunWithOptions(scenario, opts)
		if err != nil {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !run.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   run.Errors,
			})
			continue
		}

		result.Passed++
	}

	return result, nil
}

func (r *SuiteResult) fail(name, path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{
		Scenario: name,
		Path:     path,
		Errors:   []string{msg},
	})
}
