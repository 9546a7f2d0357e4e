package testutil

import (
	"context"
	"sync"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// RecordingLog wraps a Log and records every append condition it receives.
//
// Thread-safety: All methods are safe for concurrent use if the wrapped
// Log is.
type RecordingLog struct {
	eventlog.Log

	mu         sync.Mutex
	conditions []*queryir.AppendCondition
	reads      []queryir.StreamQuery
}

// NewRecordingLog wraps l.
func NewRecordingLog(l eventlog.Log) *RecordingLog {
	return &RecordingLog{Log: l}
}

// Append records cond and delegates.
func (r *RecordingLog) Append(ctx context.Context, events []ir.Event, cond *queryir.AppendCondition) error {
	r.mu.Lock()
	r.conditions = append(r.conditions, cond)
	r.mu.Unlock()
	return r.Log.Append(ctx, events, cond)
}

// Read records q and delegates.
func (r *RecordingLog) Read(ctx context.Context, q queryir.StreamQuery, after ir.SequenceNumber) ([]ir.EventEnvelope, error) {
	r.mu.Lock()
	r.reads = append(r.reads, q)
	r.mu.Unlock()
	return r.Log.Read(ctx, q, after)
}

// Conditions returns the recorded append conditions in call order.
func (r *RecordingLog) Conditions() []*queryir.AppendCondition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*queryir.AppendCondition(nil), r.conditions...)
}

// LastCondition returns the most recent append condition, nil if none.
func (r *RecordingLog) LastCondition() *queryir.AppendCondition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conditions) == 0 {
		return nil
	}
	return r.conditions[len(r.conditions)-1]
}

// Reads returns the recorded read queries in call order.
func (r *RecordingLog) Reads() []queryir.StreamQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queryir.StreamQuery(nil), r.reads...)
}

// InterleavingLog wraps a Log and runs a hook once, right before the next
// Append reaches the wrapped log. Tests use it to commit a concurrent event
// between a command's read and its append.
type InterleavingLog struct {
	eventlog.Log

	mu   sync.Mutex
	hook func(ctx context.Context, l eventlog.Log) error
}

// NewInterleavingLog wraps l.
func NewInterleavingLog(l eventlog.Log) *InterleavingLog {
	return &InterleavingLog{Log: l}
}

// BeforeNextAppend arms hook for the next Append call.
func (i *InterleavingLog) BeforeNextAppend(hook func(ctx context.Context, l eventlog.Log) error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hook = hook
}

// Append runs the armed hook against the wrapped log, then delegates.
func (i *InterleavingLog) Append(ctx context.Context, events []ir.Event, cond *queryir.AppendCondition) error {
	i.mu.Lock()
	hook := i.hook
	i.hook = nil
	i.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, i.Log); err != nil {
			return err
		}
	}
	return i.Log.Append(ctx, events, cond)
}

// AppendPayloads encodes and appends payloads unconditionally.
func AppendPayloads(ctx context.Context, l eventlog.Log, payloads ...ir.Payload) error {
	events := make([]ir.Event, len(payloads))
	for i, p := range payloads {
		e, err := ir.NewEvent(p)
		if err != nil {
			return err
		}
		events[i] = e
	}
	return l.Append(ctx, events, nil)
}
