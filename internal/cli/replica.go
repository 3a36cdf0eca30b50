package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/datamodel"
	"github.com/roach88/strata/internal/store"
)

// replica is an opened database together with its data model.
type replica struct {
	dm    *datamodel.DataModel
	store *store.Store
}

func (r *replica) Close() error {
	return r.store.Close()
}

// loadConfig reads the --config file, or the defaults when none is given,
// and applies the --db override.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// newLogger writes text logs to w at the configured level, or at debug
// level when verbose.
func newLogger(opts *RootOptions, cfg *config.Config, w io.Writer) *slog.Logger {
	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// openReplica opens the configured database. Callers must Close it.
func openReplica(ctx context.Context, opts *RootOptions, errOut io.Writer) (*replica, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return openReplicaAt(ctx, opts, cfg, cfg.Database, errOut)
}

// openReplicaAt opens path with cfg's settings. The configured client id
// only applies to the configured database; any other path keeps its own.
func openReplicaAt(ctx context.Context, opts *RootOptions, cfg *config.Config, path string, errOut io.Writer) (*replica, error) {
	logger := newLogger(opts, cfg, errOut)

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", path), err)
	}

	dmOpts := []datamodel.Option{datamodel.WithConfig(cfg), datamodel.WithLogger(logger)}
	if path != cfg.Database {
		dmOpts = append(dmOpts, datamodel.WithClientID(uuid.Nil))
	}
	dm, err := datamodel.Open(ctx, st, dmOpts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open replica %s", path), err)
	}
	return &replica{dm: dm, store: st}, nil
}

// parseID parses an entity or commit id argument.
func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", kind, s), err)
	}
	return id, nil
}

// commandContext returns the command's context, or a background context
// when the command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
