package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
	"github.com/bwaidelich/dcb-example-tree/internal/reftree"
)

// VerifyResult holds the outcome of a strict replay.
type VerifyResult struct {
	Events   int               `json:"events"`
	Nodes    int               `json:"nodes"`
	Valid    bool              `json:"valid"`
	FailedAt ir.SequenceNumber `json:"failed_at,omitempty"`
	Error    string            `json:"error,omitempty"`

	tree string
}

func (r VerifyResult) String() string {
	if !r.Valid {
		return fmt.Sprintf("✗ event log is invalid: %s", r.Error)
	}
	return fmt.Sprintf("✓ %d events replayed, %d nodes\n%s", r.Events, r.Nodes, strings.TrimSuffix(r.tree, "\n"))
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the event log and verify every transition",
		Long: `Replay the whole event log through a strict reference tree.

Unlike the projection used by commands, which skips events it cannot
apply, the reference tree fails on the first event that would add a
duplicate node, attach to a missing parent, move the root or create a
cycle. A valid log proves that no interleaving of writers corrupted the
hierarchy.

Exit codes:
  0 - Every event is a valid transition
  1 - The log contains an invalid transition
  2 - Command error (database not found, etc.)

Examples:
  dcbtree verify --db ./tree.db
  dcbtree verify --backend redis --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := verifyLog(cmd.Context(), s.log)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read events", err)
			}
			if err := s.out.Success(result); err != nil {
				return err
			}
			if !result.Valid {
				return NewExitError(ExitFailure, "event log is invalid")
			}
			return nil
		},
	}
}

// verifyLog strictly replays every event in log.
func verifyLog(ctx context.Context, log eventlog.Log) (VerifyResult, error) {
	if err := log.Setup(ctx); err != nil {
		return VerifyResult{}, err
	}
	envs, err := log.Read(ctx, queryir.Wildcard(), 0)
	if err != nil {
		return VerifyResult{}, err
	}

	ref, err := reftree.Verify(envs)
	result := VerifyResult{Events: len(envs), Nodes: ref.Len(), Valid: err == nil, tree: ref.String()}
	if err != nil {
		result.Error = err.Error()
		var re *reftree.ReplayError
		if errors.As(err, &re) {
			result.FailedAt = re.SequenceNumber
		}
	}
	return result, nil
}
