package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/model"
)

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the commit log in hybrid-clock order",
		Long: `Print the commit log oldest first, with each commit's hash chain link.

Examples:
  strata log
  strata log --limit 10
  strata log --format json`,
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

			commits, err := r.dm.Commits(ctx)
			if err != nil {
				return err
			}
			if limit > 0 && len(commits) > limit {
				commits = commits[len(commits)-limit:]
			}

			f := newFormatter(rootOpts, cmd)
			return f.Render(commits, func(w io.Writer) {
				if len(commits) == 0 {
					fmt.Fprintln(w, "No commits.")
					return
				}
				for _, c := range commits {
					writeCommit(w, c)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "only print the newest n commits")
	return cmd
}

func writeCommit(w io.Writer, c *model.Commit) {
	fmt.Fprintf(w, "%s %s <- %s\n", c.Hash, c.ID, c.ParentHash)
	fmt.Fprintf(w, "  at %s by %s", c.HybridDateTime, c.ClientID)
	if c.Metadata.AuthorName != "" {
		fmt.Fprintf(w, " (%s)", c.Metadata.AuthorName)
	}
	fmt.Fprintln(w)
	for _, ce := range c.ChangeEntities {
		fmt.Fprintf(w, "  %d. %s %s\n", ce.Index+1, ce.Change.TypeName(), ce.EntityID)
	}
}
