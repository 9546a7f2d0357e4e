package eventlog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// Memory is a process-local Log guarded by a mutex.
//
// Thread-safety: all methods are safe for concurrent use. Append evaluates
// its condition and commits under the same lock.
type Memory struct {
	mu     sync.RWMutex
	events []ir.EventEnvelope
	ids    map[string]struct{}
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]struct{})}
}

// Setup implements Log. Nothing to provision.
func (m *Memory) Setup(ctx context.Context) error {
	return ctx.Err()
}

// Append implements Log.
func (m *Memory) Append(ctx context.Context, events []ir.Event, cond *queryir.AppendCondition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateAppend(events, cond); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cond != nil {
		if env, violated := FirstViolation(m.events, *cond); violated {
			return ConditionError(*cond, env.SequenceNumber)
		}
	}

	for _, e := range events {
		if _, dup := m.ids[e.ID]; dup {
			return fmt.Errorf("append: duplicate event id %s", e.ID)
		}
	}

	for _, e := range events {
		m.ids[e.ID] = struct{}{}
		m.events = append(m.events, ir.EventEnvelope{
			Event:          cloneEvent(e),
			SequenceNumber: ir.SequenceNumber(len(m.events) + 1),
		})
	}
	return nil
}

// Read implements Log.
func (m *Memory) Read(ctx context.Context, q queryir.StreamQuery, after ir.SequenceNumber) ([]ir.EventEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := queryir.Validate(q); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []ir.EventEnvelope{}
	for _, env := range m.events {
		if env.SequenceNumber > after && q.Matches(env.Event) {
			result = append(result, ir.EventEnvelope{Event: cloneEvent(env.Event), SequenceNumber: env.SequenceNumber})
		}
	}
	return result, nil
}

// Truncate implements Log.
func (m *Memory) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.ids = make(map[string]struct{})
	return nil
}

// Len returns the number of committed events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// cloneEvent copies the mutable slices so callers cannot alter history.
func cloneEvent(e ir.Event) ir.Event {
	e.Data = slices.Clone(e.Data)
	e.Tags = slices.Clone(e.Tags)
	return e
}
