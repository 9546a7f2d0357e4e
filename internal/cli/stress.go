package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/tree"
)

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	Workers     int
	Ops         int
	IDs         int
	Seed        int64
	Reset       bool
	MetricsAddr string
}

// StressResult summarizes a stress run.
type StressResult struct {
	Workers  int            `json:"workers"`
	Ops      int            `json:"ops"`
	Seed     int64          `json:"seed"`
	Outcomes map[string]int `json:"outcomes"`
	Verify   VerifyResult   `json:"verify"`
}

func (r StressResult) String() string {
	keys := make([]string, 0, len(r.Outcomes))
	for k := range r.Outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%d workers x %d ops (seed %d)\n", r.Workers, r.Ops, r.Seed)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-10s %d\n", k, r.Outcomes[k])
	}
	b.WriteString(r.Verify.String())
	return b.String()
}

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer the log with concurrent random commands, then verify it",
		Long: `Run random add and move commands from several concurrent writers.

Each worker owns its own engine (and projection) on the shared event log,
the way separate processes would. When all workers finish, the log is
strictly replayed as with the verify command.

Exit codes:
  0 - The resulting log is valid
  1 - The resulting log contains an invalid transition
  2 - Command error

Examples:
  dcbtree stress --backend memory --workers 8 --ops 500
  dcbtree stress --db ./stress.db --reset --metrics-addr :2112`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "number of concurrent writers")
	cmd.Flags().IntVar(&opts.Ops, "ops", 200, "commands per writer")
	cmd.Flags().IntVar(&opts.IDs, "ids", 20, "size of the node id pool")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 picks one from the clock)")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "truncate the log before starting")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func runStress(opts *StressOptions, cmd *cobra.Command) error {
	if opts.Workers < 1 || opts.Ops < 0 || opts.IDs < 1 {
		return NewExitError(ExitCommandError, "--workers and --ids must be positive, --ops must not be negative")
	}
	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if err := s.log.Setup(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to set up event log", err)
	}
	if opts.Reset {
		if err := s.log.Truncate(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to truncate event log", err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := tree.NewMetrics(reg)
	addr := opts.MetricsAddr
	if addr == "" {
		addr = s.cfg.MetricsAddr
	}
	if addr != "" {
		stop := serveMetrics(s, reg, addr)
		defer stop()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ids := append(nodeIDs(opts.IDs), ir.RootNodeID)

	var mu sync.Mutex
	outcomes := map[string]int{}
	g, gctx := errgroup.WithContext(ctx)
	for w := range opts.Workers {
		g.Go(func() error {
			eng, err := s.engine(gctx, tree.WithMetrics(metrics))
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(uint64(seed), uint64(w)))
			for range opts.Ops {
				outcome, err := randomCommand(gctx, eng, rng, ids)
				if err != nil {
					return fmt.Errorf("worker %d: %w", w, err)
				}
				mu.Lock()
				outcomes[outcome]++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitCommandError, "stress run failed", err)
	}

	verify, err := verifyLog(ctx, s.log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	result := StressResult{Workers: opts.Workers, Ops: opts.Ops, Seed: seed, Outcomes: outcomes, Verify: verify}
	if err := s.out.Success(result); err != nil {
		return err
	}
	if !verify.Valid {
		return NewExitError(ExitFailure, "event log is invalid")
	}
	return nil
}

// randomCommand issues one add or move with both ids drawn from ids, which
// includes root. Only infrastructure errors are returned.
func randomCommand(ctx context.Context, eng *tree.Engine, rng *rand.Rand, ids []string) (string, error) {
	id := ids[rng.IntN(len(ids))]
	parent := ids[rng.IntN(len(ids))]

	var err error
	if rng.IntN(2) == 0 {
		err = eng.AddNode(ctx, id, parent)
	} else {
		err = eng.MoveNode(ctx, id, parent)
	}
	outcome := tree.Outcome(err)
	if outcome == tree.OutcomeError {
		return outcome, err
	}
	return outcome, nil
}

// nodeIDs returns n short ids: a, b, ..., z, a1, b1, ...
func nodeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i%26))
		if i >= 26 {
			ids[i] += fmt.Sprint(i / 26)
		}
	}
	return ids
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(s *session, reg *prometheus.Registry, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
