package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bwaidelich/dcb-example-tree/internal/tree"
)

const replUsage = `Usage:
* add <parent_id>.<new_id> - add a node, example: "add root.a"
* move <id> -> <new_parent_id> - move a node, example: "move a -> b"
* render - display the tree
* reset - reset tree
* quit - exit the program
`

var (
	replAdd  = regexp.MustCompile(`^add\s+(\S+)\.(\S+)$`)
	replMove = regexp.MustCompile(`^move\s+(\S+?)\s*->\s*(\S+)$`)
)

// NewReplCommand creates the interactive repl command.
func NewReplCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Edit the tree interactively",
		Long: `Start an interactive session reading commands from stdin.

Constraint violations are printed and the session continues. Other
errors end the session.

Examples:
  dcbtree repl
  dcbtree repl --backend memory`,
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
			r := &repl{eng: eng, in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			if err := r.run(ctx); err != nil {
				return WrapExitError(ExitCommandError, "repl failed", err)
			}
			return nil
		},
	}
}

type repl struct {
	eng *tree.Engine
	in  io.Reader
	out io.Writer
}

// run reads commands until quit or EOF.
func (r *repl) run(ctx context.Context) error {
	fmt.Fprint(r.out, replUsage)
	if err := r.printTree(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "command: ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := r.dispatch(ctx, line); err != nil {
			return err
		}
	}
}

// dispatch executes one line. Rejected commands are reported, not returned.
func (r *repl) dispatch(ctx context.Context, line string) error {
	var (
		err    error
		notice string
	)
	switch {
	case line == "":
		return nil
	case line == "render":
		return r.printTree(ctx)
	case line == "reset":
		err = r.eng.Reset(ctx)
		notice = "Removed all nodes from tree"
	case replAdd.MatchString(line):
		m := replAdd.FindStringSubmatch(line)
		err = r.eng.AddNode(ctx, m[2], m[1])
		notice = fmt.Sprintf("added node '%s' underneath '%s':", m[2], m[1])
	case replMove.MatchString(line):
		m := replMove.FindStringSubmatch(line)
		err = r.eng.MoveNode(ctx, m[1], m[2])
		notice = fmt.Sprintf("moved node '%s' to '%s':", m[1], m[2])
	default:
		fmt.Fprintf(r.out, "Error: Unknown command %q\n", line)
		fmt.Fprint(r.out, replUsage)
		return nil
	}

	switch {
	case err == nil:
	case tree.IsConstraintError(err), tree.IsConflict(err):
		fmt.Fprintf(r.out, "Error: %s\n", err)
		return nil
	default:
		return err
	}

	fmt.Fprintln(r.out, notice)
	if line == "reset" {
		return nil
	}
	return r.printTree(ctx)
}

func (r *repl) printTree(ctx context.Context) error {
	rendered, err := r.eng.Render(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, rendered)
	return nil
}
