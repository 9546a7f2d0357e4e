package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bwaidelich/dcb-example-tree/internal/tree"
)

// CommandResult is printed after a successful add, move or reset.
type CommandResult struct {
	Command string        `json:"command"`
	ID      string        `json:"id,omitempty"`
	Parent  string        `json:"parent,omitempty"`
	Notice  string        `json:"notice"`
	Tree    tree.Snapshot `json:"tree"`

	rendered string
}

func (r CommandResult) String() string {
	return r.Notice + "\n" + strings.TrimSuffix(r.rendered, "\n")
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "add <parent>.<id> | add <id> --parent <parent>",
		Short: "Add a node underneath an existing parent",
		Long: `Add a node to the tree.

The target is either "<parent>.<id>" (split at the last dot) or a bare id
combined with --parent.

Exit codes:
  0 - Node added
  1 - Rejected by a constraint or a concurrent modification
  2 - Command error

Examples:
  dcbtree add root.a
  dcbtree add b --parent a
  dcbtree add root.a --backend redis --redis-addr localhost:6379`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, parentID, err := parseAddTarget(args[0], parent)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid target", err)
			}
			return runTreeCommand(cmd, opts, "add", func(ctx context.Context, eng *tree.Engine) (CommandResult, error) {
				return CommandResult{
					ID:     id,
					Parent: parentID,
					Notice: fmt.Sprintf("added node '%s' underneath '%s':", id, parentID),
				}, eng.AddNode(ctx, id, parentID)
			})
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "parent node id")
	return cmd
}

// parseAddTarget splits "<parent>.<id>" unless the parent is given as a flag.
func parseAddTarget(arg, parentFlag string) (id, parentID string, err error) {
	if parentFlag != "" {
		return arg, parentFlag, nil
	}
	i := strings.LastIndex(arg, ".")
	if i <= 0 || i == len(arg)-1 {
		return "", "", fmt.Errorf("expected <parent>.<id>, got %q", arg)
	}
	return arg[i+1:], arg[:i], nil
}

// NewMoveCommand creates the move command.
func NewMoveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id> <new-parent> | move '<id> -> <new-parent>'",
		Short: "Move a node underneath a different parent",
		Long: `Move a node (and its subtree) to a new parent.

Exit codes:
  0 - Node moved
  1 - Rejected by a constraint or a concurrent modification
  2 - Command error

Examples:
  dcbtree move a b
  dcbtree move "a -> b"
  dcbtree move a->b
  dcbtree move -- a -> b`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, newParentID, err := parseMoveTarget(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid target", err)
			}
			return runTreeCommand(cmd, opts, "move", func(ctx context.Context, eng *tree.Engine) (CommandResult, error) {
				return CommandResult{
					ID:     id,
					Parent: newParentID,
					Notice: fmt.Sprintf("moved node '%s' to '%s':", id, newParentID),
				}, eng.MoveNode(ctx, id, newParentID)
			})
		},
	}
	return cmd
}

// parseMoveTarget accepts "a b", "a -> b" as three args (after --), or
// "a->b" as one.
func parseMoveTarget(args []string) (id, newParentID string, err error) {
	switch {
	case len(args) == 2:
		return args[0], args[1], nil
	case len(args) == 3 && args[1] == "->":
		return args[0], args[2], nil
	case len(args) == 1:
		if before, after, ok := strings.Cut(args[0], "->"); ok {
			id, newParentID = strings.TrimSpace(before), strings.TrimSpace(after)
			if id != "" && newParentID != "" && !strings.ContainsAny(id+newParentID, " \t") {
				return id, newParentID, nil
			}
		}
	}
	return "", "", fmt.Errorf("expected <id> -> <new-parent>, got %q", strings.Join(args, " "))
}

// NewRenderCommand creates the render command.
func NewRenderCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Display the tree",
		Long: `Display the current tree.

Each line shows a node id and the sequence number of the event that last
placed it. With --format json the tree is printed as nested nodes.

Examples:
  dcbtree render
  dcbtree render --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			eng, err := s.engine(ctx)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				snap, err := eng.Snapshot(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "render failed", err)
				}
				return s.out.Success(snap)
			}
			rendered, err := eng.Render(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "render failed", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove all nodes from the tree",
		Long: `Truncate the event log and clear the tree.

Examples:
  dcbtree reset
  dcbtree reset --db ./tree.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTreeCommand(cmd, opts, "reset", func(ctx context.Context, eng *tree.Engine) (CommandResult, error) {
				return CommandResult{Notice: "Removed all nodes from tree"}, eng.Reset(ctx)
			})
		},
	}
}

// runTreeCommand opens a session, runs fn and prints the resulting tree.
func runTreeCommand(cmd *cobra.Command, opts *RootOptions, name string, fn func(context.Context, *tree.Engine) (CommandResult, error)) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	eng, err := s.engine(ctx)
	if err != nil {
		return err
	}

	result, err := fn(ctx, eng)
	if err != nil {
		return s.out.Reject(name, err)
	}
	result.Command = name
	if result.Tree, err = eng.Snapshot(ctx); err != nil {
		return WrapExitError(ExitCommandError, name+" failed", err)
	}
	if result.rendered, err = eng.Render(ctx); err != nil {
		return WrapExitError(ExitCommandError, name+" failed", err)
	}
	return s.out.Success(result)
}
