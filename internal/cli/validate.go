package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/chain"
)

// ValidateResult is the outcome of a chain validation.
type ValidateResult struct {
	Valid   bool               `json:"valid"`
	Commits int                `json:"commits"`
	Head    string             `json:"head"`
	Failure *ValidationFailure `json:"failure,omitempty"`
}

// ValidationFailure describes the first broken link in the chain.
type ValidationFailure struct {
	CommitID           string `json:"commit_id"`
	ParentHash         string `json:"parent_hash"`
	ExpectedParentHash string `json:"expected_parent_hash"`
	Hash               string `json:"hash"`
	ExpectedHash       string `json:"expected_hash"`
	ActualParent       string `json:"actual_parent,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the commit hash chain",
		Long: `Recompute the hash chain over the whole commit log and report the first
commit whose hash or parent hash does not match.

Exit codes:
  0 - Chain is intact
  1 - Chain is broken
  2 - Command error (database cannot be opened, etc.)`,
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
			result := ValidateResult{Valid: true, Commits: stats.Commits, Head: stats.Head}
			f := newFormatter(rootOpts, cmd)

			err = r.dm.ValidateCommits(ctx)
			var ve *chain.ValidationError
			switch {
			case err == nil:
				return f.Render(result, func(w io.Writer) {
					fmt.Fprintf(w, "✓ chain valid: %d commits, head %s\n", result.Commits, result.Head)
				})
			case errors.As(err, &ve):
				result.Valid = false
				result.Failure = &ValidationFailure{
					CommitID:           ve.Commit.ID.String(),
					ParentHash:         ve.Commit.ParentHash,
					ExpectedParentHash: ve.ExpectedParentHash,
					Hash:               ve.Commit.Hash,
					ExpectedHash:       ve.ExpectedHash,
				}
				if ve.ActualParent != nil {
					result.Failure.ActualParent = ve.ActualParent.ID.String()
				}
				return f.Fail("E_CHAIN", "hash chain is broken", result, func(w io.Writer) {
					fmt.Fprintf(w, "✗ chain broken at commit %s\n", ve.Commit.ID)
					fmt.Fprintf(w, "  parent hash %s, expected %s\n", ve.Commit.ParentHash, ve.ExpectedParentHash)
					fmt.Fprintf(w, "  hash        %s, expected %s\n", ve.Commit.Hash, ve.ExpectedHash)
				})
			default:
				return err
			}
		},
	}
}
