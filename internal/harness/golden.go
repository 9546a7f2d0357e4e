package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
)

// snapshot converts a result to a map for canonical JSON serialization.
// Error messages are left out; codes pin the failure kind.
func snapshot(name string, result *Result) map[string]any {
	steps := make([]any, len(result.Steps))
	for i, s := range result.Steps {
		m := map[string]any{
			"command": s.Command,
			"outcome": s.Outcome,
		}
		if s.ID != "" {
			m["id"] = s.ID
		}
		if s.Parent != "" {
			m["parent"] = s.Parent
		}
		if s.Code != "" {
			m["code"] = s.Code
		}
		steps[i] = m
	}
	return map[string]any{
		"scenario_name": name,
		"steps":         steps,
		"tree":          result.Tree,
	}
}

// RunWithGolden executes a scenario, fails t if it did not pass, and
// compares its snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(snapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
