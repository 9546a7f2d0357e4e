package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/testutil"
	"github.com/bwaidelich/dcb-example-tree/internal/tree"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "file name matches scenario name")
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_ReportsMismatches(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
steps:
  - command: add
    id: a
    parent: missing
  - command: add
    id: b
    parent: root
    expect:
      outcome: constraint
  - command: add
    id: b
    parent: root
    expect:
      outcome: constraint
      code: CYCLE
      message: "nope"
final:
  parents: { a: root }
  events: 3
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		`steps[0] (add a missing): expected outcome "ok", got "constraint" (Failed to add node with id 'a' because parent node 'missing' does not exist)`,
		`steps[1] (add b root): expected outcome "constraint", got "ok" ()`,
		`steps[2] (add b root): expected code "CYCLE", got "DUPLICATE_NODE"`,
		`steps[2] (add b root): expected message containing "nope", got "Failed to add node with id 'b' because a node with that id already exists"`,
		`final: expected 3 events, got 1`,
		`final: node "a" does not exist`,
		`final: unexpected node "b"`,
	}, result.Errors)
}

func TestRunWithLog_DetectsInvalidCommittedEvents(t *testing.T) {
	ctx := context.Background()
	mem := eventlog.NewMemory()
	require.NoError(t, testutil.AppendPayloads(ctx, mem,
		ir.NodeAdded{ID: "a", ParentID: "root"},
		ir.NodeAdded{ID: "a", ParentID: "root"},
	))

	scenario := &Scenario{
		Name:  "dirty_log",
		Steps: []Step{{Command: CommandAdd, ID: "b", Parent: "a"}},
	}
	result, err := RunWithLog(ctx, mem, scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "validation failed at event 2")
	assert.Equal(t, "Tree (3):\nroot (1)\n  a (1)\n    b (3)\n", result.Tree)
}

func TestRunWithLog_RecordsConflicts(t *testing.T) {
	ctx := context.Background()
	il := testutil.NewInterleavingLog(eventlog.NewMemory())
	il.BeforeNextAppend(func(ctx context.Context, l eventlog.Log) error {
		return testutil.AppendPayloads(ctx, l, ir.NodeAdded{ID: "a", ParentID: "root"})
	})

	scenario := &Scenario{
		Name: "conflict",
		Steps: []Step{{
			Command: CommandAdd, ID: "a", Parent: "root",
			Expect: &ExpectClause{Outcome: tree.OutcomeConflict},
		}},
	}
	result, err := RunWithLog(ctx, il, scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, tree.OutcomeConflict, result.Steps[0].Outcome)
	assert.Contains(t, result.Steps[0].Message, "concurrent modification")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\nstep: []\n", "field step not found"},
		{"missing name", "steps:\n  - command: reset\n", "name is required"},
		{"no steps", "name: x\n", "steps list is required"},
		{"missing command", "name: x\nsteps:\n  - id: a\n", "command is required"},
		{"unknown command", "name: x\nsteps:\n  - command: delete\n", `unknown command "delete"`},
		{"add without parent", "name: x\nsteps:\n  - command: add\n    id: a\n", "add requires id and parent"},
		{"unknown outcome", "name: x\nsteps:\n  - command: reset\n    expect:\n      outcome: maybe\n", `unknown outcome "maybe"`},
		{"code without constraint", "name: x\nsteps:\n  - command: reset\n    expect:\n      outcome: ok\n      code: CYCLE\n", "code requires outcome"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
