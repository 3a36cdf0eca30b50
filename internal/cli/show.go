package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/datamodel"
	"github.com/roach88/strata/internal/model"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show the current state of an entity",
		Long: `Show the current snapshot of an entity, including deleted ones.

With --at, show the entity as it was when the given commit was applied.

Examples:
  strata show 0192f3c4-...
  strata show 0192f3c4-... --at 0192f3c5-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			entityID, err := parseID("entity", args[0])
			if err != nil {
				return err
			}

			r, err := openReplica(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer r.Close()

			var snap *model.ObjectSnapshot
			if at != "" {
				commitID, err := parseID("commit", at)
				if err != nil {
					return err
				}
				snap, err = r.dm.GetEntityAt(ctx, entityID, commitID)
				if err != nil {
					return lookupError(err)
				}
			} else {
				snap, err = r.dm.GetLatest(ctx, entityID)
				if err != nil {
					return lookupError(err)
				}
			}

			f := newFormatter(rootOpts, cmd)
			return f.Render(snap, func(w io.Writer) {
				writeSnapshot(w, snap)
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "commit id to read the entity at")
	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <entity-id>",
		Short:         "List the stored snapshots of an entity in commit order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			entityID, err := parseID("entity", args[0])
			if err != nil {
				return err
			}

			r, err := openReplica(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer r.Close()

			history, err := r.dm.GetSnapshotHistory(ctx, entityID)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("entity %s not found", entityID))
			}

			f := newFormatter(rootOpts, cmd)
			return f.Render(history, func(w io.Writer) {
				for i, snap := range history {
					if i > 0 {
						fmt.Fprintln(w)
					}
					writeSnapshot(w, snap)
				}
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live entities",
		Long: `List the current snapshots of every live entity, optionally of one type.

Examples:
  strata list
  strata list --type word`,
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

			snaps, err := r.dm.GetLatestSnapshots(ctx, typeName)
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd)
			return f.Render(snaps, func(w io.Writer) {
				if len(snaps) == 0 {
					fmt.Fprintln(w, "No entities.")
					return
				}
				for _, snap := range snaps {
					payload, _ := model.EncodeEntity(snap.Entity)
					fmt.Fprintf(w, "%-10s %s %s\n", snap.TypeName, snap.EntityID, payload)
				}
			})
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "", "only list entities of this type")
	return cmd
}

func writeSnapshot(w io.Writer, snap *model.ObjectSnapshot) {
	state := "live"
	if snap.EntityIsDeleted {
		state = "deleted"
	}
	fmt.Fprintf(w, "%s %s (%s)\n", snap.TypeName, snap.EntityID, state)
	fmt.Fprintf(w, "  commit: %s\n", snap.CommitID)
	if len(snap.References) > 0 {
		fmt.Fprintf(w, "  refs:   %v\n", snap.References)
	}
	payload, err := model.EncodeEntity(snap.Entity)
	if err != nil {
		fmt.Fprintf(w, "  entity: <%v>\n", err)
		return
	}
	fmt.Fprintf(w, "  entity: %s\n", payload)
}

// lookupError maps a not-found lookup to a check failure and anything else
// to a command error.
func lookupError(err error) error {
	if errors.Is(err, datamodel.ErrNotFound) {
		return WrapExitError(ExitFailure, "not found", err)
	}
	return err
}
