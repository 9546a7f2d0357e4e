package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// EventView is one committed event as printed by the events command.
type EventView struct {
	SequenceNumber ir.SequenceNumber `json:"sequence_number"`
	ID             string            `json:"id"`
	Type           ir.EventType      `json:"type"`
	Data           json.RawMessage   `json:"data"`
	Tags           []string          `json:"tags"`
}

// EventsResult lists events after a position.
type EventsResult struct {
	After  ir.SequenceNumber `json:"after"`
	Events []EventView       `json:"events"`
}

func (r EventsResult) String() string {
	if len(r.Events) == 0 {
		return "No events found."
	}
	var b strings.Builder
	for i, e := range r.Events {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d %s %s [%s]", e.SequenceNumber, e.Type, e.Data, strings.Join(e.Tags, ", "))
	}
	return b.String()
}

// NewEventsCommand creates the events command.
func NewEventsCommand(opts *RootOptions) *cobra.Command {
	var after int64

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List committed events",
		Long: `List the events in the log in sequence order.

Examples:
  dcbtree events
  dcbtree events --after 10 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if after < 0 {
				return NewExitError(ExitCommandError, "--after must not be negative")
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.log.Setup(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to set up event log", err)
			}
			envs, err := s.log.Read(ctx, queryir.Wildcard(), ir.SequenceNumber(after))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read events", err)
			}

			result := EventsResult{After: ir.SequenceNumber(after), Events: make([]EventView, 0, len(envs))}
			for _, env := range envs {
				result.Events = append(result.Events, viewOf(env))
			}
			return s.out.Success(result)
		},
	}

	cmd.Flags().Int64Var(&after, "after", 0, "only list events after this sequence number")
	return cmd
}

func viewOf(env ir.EventEnvelope) EventView {
	tags := make([]string, 0, len(env.Event.Tags))
	for _, t := range env.Event.Tags {
		tags = append(tags, t.String())
	}
	return EventView{
		SequenceNumber: env.SequenceNumber,
		ID:             env.Event.ID,
		Type:           env.Event.Type,
		Data:           json.RawMessage(env.Event.Data),
		Tags:           tags,
	}
}
