package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
	"github.com/bwaidelich/dcb-example-tree/internal/reftree"
	"github.com/bwaidelich/dcb-example-tree/internal/store"
	"github.com/bwaidelich/dcb-example-tree/internal/tree"
)

// Run executes a scenario against a fresh in-memory SQLite log.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	return RunWithLog(context.Background(), st, scenario)
}

// RunWithLog executes a scenario against log. The log should be empty.
//
// Execution flow:
// 1. Create an engine (sets up the log)
// 2. Execute steps, comparing outcomes with expect clauses
// 3. Strictly replay the log through the reference tree
// 4. Compare the final tree with the final clause
//
// Infrastructure errors abort the run; expectation mismatches are
// collected in the result.
func RunWithLog(ctx context.Context, log eventlog.Log, scenario *Scenario) (*Result, error) {
	eng, err := tree.New(ctx, log)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := execute(ctx, eng, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)
		for _, msg := range checkExpect(step.Expect, sr) {
			result.AddError(fmt.Sprintf("steps[%d] (%s %s %s): %s", i, step.Command, step.ID, step.Parent, msg))
		}
	}

	envs, err := log.Read(ctx, queryir.Wildcard(), 0)
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	ref, err := reftree.Verify(envs)
	if err != nil {
		result.AddError(err.Error())
	}

	rendered, err := eng.Render(ctx)
	if err != nil {
		return nil, err
	}
	result.Tree = rendered

	if scenario.Final != nil {
		checkFinal(scenario.Final, ref.Parents(), len(envs), result)
	}
	return result, nil
}

// execute runs one step. Only infrastructure errors are returned.
func execute(ctx context.Context, eng *tree.Engine, step Step) (StepResult, error) {
	sr := StepResult{Command: step.Command, ID: step.ID, Parent: step.Parent}

	var err error
	switch step.Command {
	case CommandAdd:
		err = eng.AddNode(ctx, step.ID, step.Parent)
	case CommandMove:
		err = eng.MoveNode(ctx, step.ID, step.Parent)
	case CommandReset:
		err = eng.Reset(ctx)
	default:
		return sr, fmt.Errorf("unknown command %q", step.Command)
	}

	sr.Outcome = tree.Outcome(err)
	if sr.Outcome == tree.OutcomeError {
		return sr, err
	}
	if err != nil {
		sr.Message = err.Error()
	}
	if code, ok := tree.ConstraintCode(err); ok {
		sr.Code = string(code)
	}
	return sr, nil
}

func checkExpect(expect *ExpectClause, sr StepResult) []string {
	if expect == nil {
		expect = &ExpectClause{Outcome: tree.OutcomeOK}
	}

	var errs []string
	if sr.Outcome != expect.Outcome {
		errs = append(errs, fmt.Sprintf("expected outcome %q, got %q (%s)", expect.Outcome, sr.Outcome, sr.Message))
	}
	if expect.Code != "" && sr.Code != string(expect.Code) {
		errs = append(errs, fmt.Sprintf("expected code %q, got %q", expect.Code, sr.Code))
	}
	if expect.Message != "" && !strings.Contains(sr.Message, expect.Message) {
		errs = append(errs, fmt.Sprintf("expected message containing %q, got %q", expect.Message, sr.Message))
	}
	return errs
}

func checkFinal(final *FinalExpect, parents map[string]string, events int, result *Result) {
	if final.Events != nil && *final.Events != events {
		result.AddError(fmt.Sprintf("final: expected %d events, got %d", *final.Events, events))
	}
	if final.Parents == nil {
		return
	}
	for _, id := range slices.Sorted(maps.Keys(final.Parents)) {
		want := final.Parents[id]
		got, ok := parents[id]
		switch {
		case !ok:
			result.AddError(fmt.Sprintf("final: node %q does not exist", id))
		case got != want:
			result.AddError(fmt.Sprintf("final: node %q has parent %q, expected %q", id, got, want))
		}
	}
	for _, id := range slices.Sorted(maps.Keys(parents)) {
		if _, ok := final.Parents[id]; !ok {
			result.AddError(fmt.Sprintf("final: unexpected node %q", id))
		}
	}
}
