package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// Read returns all events matching q after the given sequence number,
// ordered by sequence_number ASC.
//
// Returns an empty slice (not nil) if no events match.
func (s *Store) Read(ctx context.Context, q queryir.StreamQuery, after ir.SequenceNumber) ([]ir.EventEnvelope, error) {
	query, params, err := s.compiler.SelectEvents(q, after)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	envelopes := []ir.EventEnvelope{}
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return envelopes, nil
}

// HighestSequenceNumber returns the sequence number of the last event, 0 if empty.
func (s *Store) HighestSequenceNumber(ctx context.Context) (ir.SequenceNumber, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(sequence_number) FROM %s", s.compiler.EventsTable),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query highest sequence number: %w", err)
	}
	return ir.SequenceNumber(seq.Int64), nil
}

// scanEnvelope scans a row into an EventEnvelope.
func scanEnvelope(rows *sql.Rows) (ir.EventEnvelope, error) {
	var env ir.EventEnvelope
	var seq int64
	var typ, data, tagsJSON string

	if err := rows.Scan(&seq, &env.Event.ID, &typ, &data, &tagsJSON); err != nil {
		return ir.EventEnvelope{}, fmt.Errorf("scan event: %w", err)
	}

	var tags ir.Tags
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return ir.EventEnvelope{}, fmt.Errorf("unmarshal tags of event %d: %w", seq, err)
	}

	env.SequenceNumber = ir.SequenceNumber(seq)
	env.Event.Type = ir.EventType(typ)
	env.Event.Data = []byte(data)
	env.Event.Tags = tags
	return env, nil
}
