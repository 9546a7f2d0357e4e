package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bwaidelich/dcb-example-tree/internal/config"
	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/logging"
	"github.com/bwaidelich/dcb-example-tree/internal/redislog"
	"github.com/bwaidelich/dcb-example-tree/internal/store"
	"github.com/bwaidelich/dcb-example-tree/internal/tree"
)

// session bundles everything a command needs to talk to the event log.
type session struct {
	cfg    config.Config
	log    eventlog.Log
	logger *slog.Logger
	out    *OutputFormatter
	close  func() error
}

// resolveConfig loads the config file (if any) and applies flag overrides.
func (o *RootOptions) resolveConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	if o.Database != "" {
		cfg.SQLite.Path = o.Database
	}
	if o.Table != "" {
		cfg.SQLite.Table = o.Table
	}
	if o.RedisAddr != "" {
		cfg.Redis.Addr = o.RedisAddr
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openSession resolves the configuration and opens the event log.
// The caller must call Close.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := opts.resolveConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(cmd.ErrOrStderr(), level)
	if opts.Format == "json" {
		logger = logging.NewJSON(cmd.ErrOrStderr(), level)
	}

	s := &session{cfg: cfg, logger: logger, out: opts.formatter(cmd), close: func() error { return nil }}
	switch cfg.Backend {
	case config.BackendSQLite:
		st, err := store.Open(cfg.SQLite.Path, store.WithTable(cfg.SQLite.Table))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		s.log, s.close = st, st.Close
	case config.BackendRedis:
		rl := redislog.New(cfg.Redis.Addr, redislog.WithPrefix(cfg.Redis.Prefix))
		s.log, s.close = rl, rl.Close
	case config.BackendMemory:
		s.log = eventlog.NewMemory()
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}

	logger.Debug("opened event log", "backend", cfg.Backend)
	return s, nil
}

// engine creates a tree engine over the session's log.
func (s *session) engine(ctx context.Context, opts ...tree.Option) (*tree.Engine, error) {
	opts = append([]tree.Option{tree.WithLogger(s.logger)}, opts...)
	eng, err := tree.New(ctx, s.log, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load tree", err)
	}
	return eng, nil
}

// Close releases the backend.
func (s *session) Close() error {
	return s.close()
}
