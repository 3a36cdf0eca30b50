package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// SyncOutput reports a two-way sync.
type SyncOutput struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
	Pulled int    `json:"pulled"`
	Pushed int    `json:"pushed"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <remote-db>",
		Short: "Exchange commits with another replica database",
		Long: `Sync the local replica with the replica stored in another database file.

The local side pulls the commits it lacks, then pushes the commits the
remote lacks. Both sides rebuild their snapshots and end with the same log.
Counts include commits re-sent because they share the last synced
millisecond; the receiving side ignores those.

Examples:
  strata sync ../laptop/strata.db
  strata --db phone.db sync laptop.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if samePath(cfg.Database, args[0]) {
				return NewExitError(ExitCommandError, "cannot sync a database with itself")
			}

			local, err := openReplicaAt(ctx, rootOpts, cfg, cfg.Database, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer local.Close()

			remote, err := openReplicaAt(ctx, rootOpts, cfg, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer remote.Close()

			f := newFormatter(rootOpts, cmd)
			f.VerboseLog("syncing client %s with client %s", local.dm.ClientID(), remote.dm.ClientID())
			result, err := local.dm.SyncWith(ctx, remote.dm)
			if err != nil {
				return err
			}

			out := SyncOutput{
				Local:  cfg.Database,
				Remote: args[0],
				Pulled: result.Pulled,
				Pushed: result.Pushed,
			}
			return f.Render(out, func(w io.Writer) {
				fmt.Fprintf(w, "synced %s with %s: pulled %d, pushed %d\n", out.Local, out.Remote, out.Pulled, out.Pushed)
			})
		},
	}
}

// SyncStateEntry is the latest instant seen from one client.
type SyncStateEntry struct {
	ClientID string `json:"client_id"`
	Millis   int64  `json:"millis"`
	At       string `json:"at"`
}

// NewSyncStateCommand creates the sync-state command.
func NewSyncStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync-state",
		Short:         "Print the latest commit instant per client",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			r, err := openReplica(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer r.Close()

			state, err := r.dm.GetSyncState(ctx)
			if err != nil {
				return err
			}

			entries := make([]SyncStateEntry, 0, len(state))
			for client, ms := range state {
				entries = append(entries, SyncStateEntry{
					ClientID: client.String(),
					Millis:   ms,
					At:       time.UnixMilli(ms).UTC().Format(time.RFC3339Nano),
				})
			}
			slices.SortFunc(entries, func(a, b SyncStateEntry) int {
				return strings.Compare(a.ClientID, b.ClientID)
			})

			f := newFormatter(rootOpts, cmd)
			return f.Render(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No commits.")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%s %s\n", e.ClientID, e.At)
				}
			})
		},
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
