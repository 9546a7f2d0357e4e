// Package logtest provides a reusable test suite for eventlog.Log
// implementations.
package logtest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// Factory creates a fresh, set-up, empty log for one subtest.
type Factory func(t *testing.T) eventlog.Log

// RunContract verifies that a Log implementation honours the event log
// contract: ordering, filtering, watermarks, conditional append and truncate.
func RunContract(t *testing.T, newLog Factory) {
	t.Helper()

	t.Run("Setup_Idempotent", func(t *testing.T) {
		l := newLog(t)
		ctx := context.Background()
		require.NoError(t, l.Setup(ctx))
		require.NoError(t, l.Setup(ctx))
		assertLen(t, l, 0)
	})

	t.Run("Read_EmptyLog", func(t *testing.T) {
		envs, err := newLog(t).Read(context.Background(), queryir.Wildcard(), 0)
		require.NoError(t, err)
		assert.NotNil(t, envs)
		assert.Empty(t, envs)
	})

	t.Run("Append_AssignsIncreasingSequenceNumbers", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))
		mustAppend(t, l, nil, added("b", "a"), moved("a", "root"))

		envs := readAll(t, l)
		require.Len(t, envs, 3)
		for i, env := range envs {
			assert.Equal(t, ir.SequenceNumber(i+1), env.SequenceNumber)
		}
	})

	t.Run("Read_RoundTripsEvents", func(t *testing.T) {
		l := newLog(t)
		e := added("a", "root")
		mustAppend(t, l, nil, e)

		envs := readAll(t, l)
		require.Len(t, envs, 1)
		got := envs[0].Event
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, e.Type, got.Type)
		assert.Equal(t, string(e.Data), string(got.Data))
		assert.ElementsMatch(t, e.Tags, got.Tags)
	})

	t.Run("Read_AfterWatermark", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))
		mustAppend(t, l, nil, added("b", "root"))
		mustAppend(t, l, nil, added("c", "root"))

		envs, err := l.Read(context.Background(), queryir.Wildcard(), 2)
		require.NoError(t, err)
		require.Len(t, envs, 1)
		assert.Equal(t, ir.SequenceNumber(3), envs[0].SequenceNumber)

		envs, err = l.Read(context.Background(), queryir.Wildcard(), 3)
		require.NoError(t, err)
		assert.Empty(t, envs)
	})

	t.Run("Read_FiltersByTypeAndTag", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))
		mustAppend(t, l, nil, added("b", "a"))
		mustAppend(t, l, nil, moved("b", "root"))

		q := queryir.New(queryir.TypesAndTags(
			[]ir.EventType{ir.EventTypeNodeAdded},
			ir.NewTag(ir.TagKeyID, "b"),
		))
		envs, err := l.Read(context.Background(), q, 0)
		require.NoError(t, err)
		require.Len(t, envs, 1)
		assert.Equal(t, ir.SequenceNumber(2), envs[0].SequenceNumber)

		q = queryir.New(queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "b")))
		envs, err = l.Read(context.Background(), q, 0)
		require.NoError(t, err)
		assert.Equal(t, []ir.SequenceNumber{2, 3}, seqs(envs))
	})

	t.Run("Read_Disjunction", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))
		mustAppend(t, l, nil, added("b", "root"))
		mustAppend(t, l, nil, added("c", "a"))

		q := queryir.New(
			queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "c")),
			queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "a")),
		)
		envs, err := l.Read(context.Background(), q, 0)
		require.NoError(t, err)
		assert.Equal(t, []ir.SequenceNumber{1, 3}, seqs(envs))
	})

	t.Run("Read_ConjunctionOfTags", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))
		mustAppend(t, l, nil, added("b", "a"))

		q := queryir.New(queryir.TaggedWith(
			ir.NewTag(ir.TagKeyID, "b"),
			ir.NewTag(ir.TagKeyParentID, "root"),
		))
		envs, err := l.Read(context.Background(), q, 0)
		require.NoError(t, err)
		assert.Empty(t, envs)
	})

	t.Run("Append_ConditionHolds", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))

		cond := &queryir.AppendCondition{
			Query:                 queryir.New(queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "a"))),
			HighestSequenceNumber: 1,
		}
		mustAppend(t, l, cond, added("b", "a"))
		assertLen(t, l, 2)
	})

	t.Run("Append_ConditionViolated", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))

		cond := &queryir.AppendCondition{
			Query:                 queryir.New(queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "a"))),
			HighestSequenceNumber: 0,
		}
		err := l.Append(context.Background(), []ir.Event{added("a", "root")}, cond)
		require.Error(t, err)
		assert.True(t, errors.Is(err, eventlog.ErrAppendConditionFailed), "got %v", err)
		assertLen(t, l, 1)
	})

	t.Run("Append_UnrelatedEventDoesNotViolate", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("z", "root"))

		cond := &queryir.AppendCondition{
			Query: queryir.New(
				queryir.TypesAndTags([]ir.EventType{ir.EventTypeNodeAdded}, ir.NewTag(ir.TagKeyID, "a")),
			),
			HighestSequenceNumber: 0,
		}
		mustAppend(t, l, cond, added("a", "root"))
		assertLen(t, l, 2)
	})

	t.Run("Append_ConditionRespectsType", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))
		mustAppend(t, l, nil, moved("a", "root"))

		cond := &queryir.AppendCondition{
			Query: queryir.New(
				queryir.TypesAndTags([]ir.EventType{ir.EventTypeNodeAdded}, ir.NewTag(ir.TagKeyID, "a")),
			),
			HighestSequenceNumber: 1,
		}
		mustAppend(t, l, cond, added("b", "a"))
	})

	t.Run("Append_MultipleEventsAtomic", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))

		cond := &queryir.AppendCondition{
			Query:                 queryir.New(queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "a"))),
			HighestSequenceNumber: 0,
		}
		err := l.Append(context.Background(), []ir.Event{added("b", "root"), added("c", "root")}, cond)
		require.ErrorIs(t, err, eventlog.ErrAppendConditionFailed)
		assertLen(t, l, 1)

		mustAppend(t, l, nil, added("b", "root"), added("c", "root"))
		assert.Equal(t, []ir.SequenceNumber{1, 2, 3}, seqs(readAll(t, l)))
	})

	t.Run("Append_RejectsInvalidInput", func(t *testing.T) {
		l := newLog(t)
		assert.Error(t, l.Append(context.Background(), nil, nil))
		assert.Error(t, l.Append(context.Background(), []ir.Event{{Type: ir.EventTypeNodeAdded}}, nil))
		assertLen(t, l, 0)
	})

	t.Run("Append_RejectsDuplicateEventIDs", func(t *testing.T) {
		l := newLog(t)
		first := added("a", "root")
		mustAppend(t, l, nil, first)

		assert.Error(t, l.Append(context.Background(), []ir.Event{first}, nil))
		assertLen(t, l, 1)

		again := added("b", "root")
		assert.Error(t, l.Append(context.Background(), []ir.Event{again, again}, nil))
		assertLen(t, l, 1)
	})

	t.Run("Truncate_RestartsNumbering", func(t *testing.T) {
		l := newLog(t)
		mustAppend(t, l, nil, added("a", "root"))
		mustAppend(t, l, nil, added("b", "root"))

		require.NoError(t, l.Truncate(context.Background()))
		assertLen(t, l, 0)

		mustAppend(t, l, nil, added("c", "root"))
		assert.Equal(t, []ir.SequenceNumber{1}, seqs(readAll(t, l)))
	})

	t.Run("Append_ConcurrentConflictingWriters", func(t *testing.T) {
		l := newLog(t)
		const writers = 8
		cond := &queryir.AppendCondition{
			Query: queryir.New(
				queryir.TypesAndTags([]ir.EventType{ir.EventTypeNodeAdded}, ir.NewTag(ir.TagKeyID, "x")),
			),
			HighestSequenceNumber: 0,
		}

		var wins, conflicts atomic.Int32
		var g errgroup.Group
		for i := 0; i < writers; i++ {
			g.Go(func() error {
				err := l.Append(context.Background(), []ir.Event{added("x", "root")}, cond)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, eventlog.ErrAppendConditionFailed):
					conflicts.Add(1)
				default:
					return fmt.Errorf("unexpected error: %w", err)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(writers-1), conflicts.Load())
		assertLen(t, l, 1)
	})
}

func added(id, parentID string) ir.Event {
	e, err := ir.NewEvent(ir.NodeAdded{ID: id, ParentID: parentID})
	if err != nil {
		panic(err)
	}
	return e
}

func moved(id, newParentID string) ir.Event {
	e, err := ir.NewEvent(ir.NodeMoved{ID: id, NewParentID: newParentID})
	if err != nil {
		panic(err)
	}
	return e
}

func mustAppend(t *testing.T, l eventlog.Log, cond *queryir.AppendCondition, events ...ir.Event) {
	t.Helper()
	require.NoError(t, l.Append(context.Background(), events, cond))
}

func readAll(t *testing.T, l eventlog.Log) []ir.EventEnvelope {
	t.Helper()
	envs, err := l.Read(context.Background(), queryir.Wildcard(), 0)
	require.NoError(t, err)
	return envs
}

func assertLen(t *testing.T, l eventlog.Log, n int) {
	t.Helper()
	assert.Len(t, readAll(t, l), n)
}

func seqs(envs []ir.EventEnvelope) []ir.SequenceNumber {
	out := make([]ir.SequenceNumber, len(envs))
	for i, env := range envs {
		out[i] = env.SequenceNumber
	}
	return out
}
