package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// Append inserts events in one IMMEDIATE transaction, after checking the
// append condition inside that same transaction.
//
// Returns eventlog.ErrAppendConditionFailed (wrapped) if an event matching
// cond.Query was committed after cond.HighestSequenceNumber. A duplicate
// event id violates the UNIQUE constraint and is returned as an error.
func (s *Store) Append(ctx context.Context, events []ir.Event, cond *queryir.AppendCondition) error {
	if err := eventlog.ValidateAppend(events, cond); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if cond != nil {
		if err := s.checkCondition(ctx, tx, *cond); err != nil {
			return err
		}
	}

	for _, e := range events {
		if err := s.insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

// checkCondition probes for the first event violating cond.
func (s *Store) checkCondition(ctx context.Context, tx *sql.Tx, cond queryir.AppendCondition) error {
	query, params, err := s.compiler.ConflictProbe(cond)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	var offending int64
	err = tx.QueryRowContext(ctx, query, params...).Scan(&offending)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("append: check condition: %w", err)
	default:
		return eventlog.ConditionError(cond, ir.SequenceNumber(offending))
	}
}

// insertEvent writes the event row and its tag rows.
func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, e ir.Event) error {
	tags := e.Tags.Normalize()
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, type, data, tags) VALUES (?, ?, ?, ?)`, s.compiler.EventsTable),
		e.ID, string(e.Type), string(e.Data), tagsJSON,
	)
	if err != nil {
		return fmt.Errorf("append: insert event %s: %w", e.ID, err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("append: last insert id: %w", err)
	}

	for _, tag := range tags {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (sequence_number, key, value) VALUES (?, ?, ?)`, s.compiler.TagsTable),
			seq, tag.Key, tag.Value,
		)
		if err != nil {
			return fmt.Errorf("append: insert tag %s: %w", tag, err)
		}
	}
	return nil
}

// Truncate deletes all events and resets the sequence.
func (s *Store) Truncate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("truncate: begin tx: %w", err)
	}
	defer tx.Rollback()

	statements := []struct {
		query string
		args  []any
	}{
		{fmt.Sprintf("DELETE FROM %s", s.compiler.TagsTable), nil},
		{fmt.Sprintf("DELETE FROM %s", s.compiler.EventsTable), nil},
		{"DELETE FROM sqlite_sequence WHERE name = ?", []any{s.compiler.EventsTable}},
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("truncate: commit: %w", err)
	}
	return nil
}

// marshalTags converts tags to JSON TEXT for storage.
func marshalTags(tags ir.Tags) (string, error) {
	if tags == nil {
		tags = ir.Tags{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}
