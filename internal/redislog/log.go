package redislog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "dcbtree:"

// maxAttempts bounds optimistic retries of a single Append.
const maxAttempts = 64

var _ eventlog.Log = (*Log)(nil)

// Log is the Redis event log.
type Log struct {
	client backend.UniversalClient
	prefix string
}

// Option configures a Log.
type Option func(*Log)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Log) {
		l.prefix = prefix
	}
}

// New connects to the Redis server at address.
func New(address string, opts ...Option) *Log {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: address}), opts...)
}

// NewFromClient creates a Log on an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Log {
	l := &Log{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// record is the stored form of an envelope.
type record struct {
	SequenceNumber ir.SequenceNumber `json:"sequence_number"`
	ID             string            `json:"id"`
	Type           ir.EventType      `json:"type"`
	Data           string            `json:"data"`
	Tags           ir.Tags           `json:"tags"`
}

func (l *Log) eventsKey() string { return l.prefix + "events" }
func (l *Log) headKey() string   { return l.prefix + "head" }
func (l *Log) idsKey() string    { return l.prefix + "ids" }

// Close closes the underlying client.
func (l *Log) Close() error {
	return l.client.Close()
}

// Setup implements eventlog.Log. It only checks connectivity; keys are
// created on first append.
func (l *Log) Setup(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Append implements eventlog.Log.
func (l *Log) Append(ctx context.Context, events []ir.Event, cond *queryir.AppendCondition) error {
	if err := eventlog.ValidateAppend(events, cond); err != nil {
		return err
	}

	ids := make([]any, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	txf := func(tx *backend.Tx) error {
		head, err := l.readHead(ctx, tx)
		if err != nil {
			return err
		}

		if cond != nil && head > cond.HighestSequenceNumber {
			envs, err := l.rangeAfter(ctx, tx, cond.HighestSequenceNumber)
			if err != nil {
				return err
			}
			if env, violated := eventlog.FirstViolation(envs, *cond); violated {
				return eventlog.ConditionError(*cond, env.SequenceNumber)
			}
		}

		dups, err := tx.SMIsMember(ctx, l.idsKey(), ids...).Result()
		if err != nil {
			return fmt.Errorf("append: check ids: %w", err)
		}
		for i, dup := range dups {
			if dup {
				return fmt.Errorf("append: duplicate event id %s", events[i].ID)
			}
		}

		values := make([]any, len(events))
		for i, e := range events {
			data, err := json.Marshal(record{
				SequenceNumber: head + ir.SequenceNumber(i+1),
				ID:             e.ID,
				Type:           e.Type,
				Data:           string(e.Data),
				Tags:           e.Tags.Normalize(),
			})
			if err != nil {
				return fmt.Errorf("append: marshal event %s: %w", e.ID, err)
			}
			values[i] = data
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.RPush(ctx, l.eventsKey(), values...)
			pipe.SAdd(ctx, l.idsKey(), ids...)
			pipe.Set(ctx, l.headKey(), int64(head)+int64(len(events)), 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("append: commit: %w", err)
		}
		return nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := l.client.Watch(ctx, txf, l.headKey())
		if !errors.Is(err, backend.TxFailedErr) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("append: gave up after %d contended attempts", maxAttempts)
}

// Read implements eventlog.Log.
func (l *Log) Read(ctx context.Context, q queryir.StreamQuery, after ir.SequenceNumber) ([]ir.EventEnvelope, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if after < 0 {
		after = 0
	}

	envs, err := l.rangeAfter(ctx, l.client, after)
	if err != nil {
		return nil, err
	}

	result := []ir.EventEnvelope{}
	for _, env := range envs {
		if q.Matches(env.Event) {
			result = append(result, env)
		}
	}
	return result, nil
}

// Truncate implements eventlog.Log.
func (l *Log) Truncate(ctx context.Context) error {
	if err := l.client.Del(ctx, l.eventsKey(), l.headKey(), l.idsKey()).Err(); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

// rangeAfter loads every event with a sequence number greater than after.
func (l *Log) rangeAfter(ctx context.Context, c backend.Cmdable, after ir.SequenceNumber) ([]ir.EventEnvelope, error) {
	raw, err := c.LRange(ctx, l.eventsKey(), int64(after), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	envs := make([]ir.EventEnvelope, 0, len(raw))
	for _, s := range raw {
		var r record
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		envs = append(envs, ir.EventEnvelope{
			Event: ir.Event{
				ID:   r.ID,
				Type: r.Type,
				Data: []byte(r.Data),
				Tags: r.Tags,
			},
			SequenceNumber: r.SequenceNumber,
		})
	}
	return envs, nil
}

// readHead returns the highest committed sequence number, 0 if empty.
func (l *Log) readHead(ctx context.Context, tx *backend.Tx) (ir.SequenceNumber, error) {
	head, err := tx.Get(ctx, l.headKey()).Int64()
	if errors.Is(err, backend.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read head: %w", err)
	}
	return ir.SequenceNumber(head), nil
}
