package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// ErrAppendConditionFailed is returned by Append when an event matching the
// condition's query was committed after its highest sequence number.
// Nothing is appended in that case. Match with errors.Is.
var ErrAppendConditionFailed = errors.New("append condition failed")

// Log is the append-only, totally ordered event log.
type Log interface {
	// Setup provisions storage. Idempotent.
	Setup(ctx context.Context) error

	// Append atomically appends events. With a non-nil condition the append
	// is rejected with ErrAppendConditionFailed if any event matching
	// cond.Query has a sequence number greater than cond.HighestSequenceNumber.
	Append(ctx context.Context, events []ir.Event, cond *queryir.AppendCondition) error

	// Read returns every event matching q with a sequence number greater than
	// after, in ascending order. Returns an empty slice (not nil) if none match.
	Read(ctx context.Context, q queryir.StreamQuery, after ir.SequenceNumber) ([]ir.EventEnvelope, error)

	// Truncate removes every event and restarts numbering at 1.
	// Administrative operation; not safe against concurrent writers.
	Truncate(ctx context.Context) error
}

// ConditionError builds the error returned for a violated condition.
func ConditionError(cond queryir.AppendCondition, offending ir.SequenceNumber) error {
	return fmt.Errorf("%w: event %d matches %s", ErrAppendConditionFailed, offending, cond)
}

// FirstViolation scans envelopes for the first one violating cond.
func FirstViolation(envs []ir.EventEnvelope, cond queryir.AppendCondition) (ir.EventEnvelope, bool) {
	for _, env := range envs {
		if cond.ViolatedBy(env) {
			return env, true
		}
	}
	return ir.EventEnvelope{}, false
}

// ValidateAppend checks the arguments common to every Append implementation.
func ValidateAppend(events []ir.Event, cond *queryir.AppendCondition) error {
	if len(events) == 0 {
		return fmt.Errorf("append: no events")
	}
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("append: %w", err)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("append: duplicate event id %s", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	if cond != nil {
		if err := queryir.Validate(cond.Query); err != nil {
			return fmt.Errorf("append: %w", err)
		}
		if cond.HighestSequenceNumber < 0 {
			return fmt.Errorf("append: negative highest sequence number %d", cond.HighestSequenceNumber)
		}
	}
	return nil
}
