package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Scenarios      []ScenarioResult `json:"scenarios"`
	TotalScenarios int              `json:"total_scenarios"`
	Passed         int              `json:"passed"`
	Failed         int              `json:"failed"`
}

// ScenarioResult is the outcome of one scenario file. Name is empty when
// the file failed to load.
type ScenarioResult struct {
	ScenarioPath string   `json:"scenario_path"`
	Name         string   `json:"name,omitempty"`
	Pass         bool     `json:"pass"`
	Errors       []string `json:"errors,omitempty"`
}

// Failures returns the scenarios that did not pass, in run order.
func (r *SuiteResult) Failures() []ScenarioResult {
	var out []ScenarioResult
	for _, s := range r.Scenarios {
		if !s.Pass {
			out = append(out, s)
		}
	}
	return out
}

// RunSuite loads and runs every *.yaml scenario in dir, in file name order.
// A non-empty filter is a glob matched against the file name without its
// extension. A scenario that fails to load counts as failed; the suite
// keeps going.
func RunSuite(ctx context.Context, dir, filter string) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	slices.Sort(paths)

	result := &SuiteResult{Scenarios: []ScenarioResult{}}
	for _, path := range paths {
		if filter != "" {
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			matched, err := filepath.Match(filter, base)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !matched {
				continue
			}
		}
		result.add(runScenarioFile(ctx, path))
	}

	return result, nil
}

func runScenarioFile(ctx context.Context, path string) ScenarioResult {
	scenario, err := LoadScenario(path)
	if err != nil {
		return ScenarioResult{
			ScenarioPath: path,
			Errors:       []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	sr := ScenarioResult{ScenarioPath: path, Name: scenario.Name}
	runResult, err := RunContext(ctx, scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return sr
	}
	sr.Pass = runResult.Pass
	if !runResult.Pass {
		sr.Errors = runResult.Errors
	}
	return sr
}

func (r *SuiteResult) add(s ScenarioResult) {
	r.TotalScenarios++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
	r.Scenarios = append(r.Scenarios, s)
}
