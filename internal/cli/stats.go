package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Summarize the local replica",
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

			stats, err := r.dm.Stats(ctx)
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd)
			return f.Render(stats, func(w io.Writer) {
				fmt.Fprintf(w, "database:  %s\n", r.store.Path())
				fmt.Fprintf(w, "client:    %s\n", stats.ClientID)
				fmt.Fprintf(w, "commits:   %d\n", stats.Commits)
				fmt.Fprintf(w, "snapshots: %d\n", stats.Snapshots)
				fmt.Fprintf(w, "clients:   %d\n", len(stats.SyncState))
				fmt.Fprintf(w, "head:      %s\n", stats.Head)
			})
		},
	}
}
