package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/model"
)

// ValidationError reports a commit whose stored hash or parent hash does
// not match the chain recomputed from its predecessors. It signals an
// integrity violation and is never repaired automatically.
type ValidationError struct {
	// Commit is the offending commit.
	Commit *model.Commit
	// ExpectedParentHash is the hash of the previous commit in CompareKey order.
	ExpectedParentHash string
	// ExpectedHash is Hash(Commit.ID, ExpectedParentHash).
	ExpectedHash string
	// ActualParent is the commit whose hash equals Commit.ParentHash, or nil
	// when no such commit exists (a missing or corrupted ancestor).
	ActualParent *model.Commit
}

func (e *ValidationError) Error() string {
	actual := "<missing>"
	if e.ActualParent != nil {
		actual = e.ActualParent.ID.String()
	}
	return fmt.Sprintf("chain validation failed at commit %s: parent hash %q, expected %q (hash %q, expected %q, actual parent %s)",
		e.Commit.ID, e.Commit.ParentHash, e.ExpectedParentHash, e.Commit.Hash, e.ExpectedHash, actual)
}

// IsValidationError returns true if the error is a chain validation error.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParentLookup finds a commit by its hash. It returns nil, nil when no
// commit has that hash.
type ParentLookup func(ctx context.Context, hash string) (*model.Commit, error)

// Validate walks commits, which must be in CompareKey order, and returns a
// *ValidationError for the first commit whose parent hash or hash does not
// match the recomputed chain. lookup may be nil, in which case ActualParent
// is resolved only among the given commits.
func Validate(ctx context.Context, commits []*model.Commit, lookup ParentLookup) error {
	expectedParent := model.NullParentHash
	for _, c := range commits {
		expectedHash := Hash(c.ID, expectedParent)
		if c.ParentHash != expectedParent || c.Hash != expectedHash {
			actual, err := findParent(ctx, commits, c.ParentHash, lookup)
			if err != nil {
				return fmt.Errorf("validate chain: %w", err)
			}
			return &ValidationError{
				Commit:             c,
				ExpectedParentHash: expectedParent,
				ExpectedHash:       expectedHash,
				ActualParent:       actual,
			}
		}
		expectedParent = c.Hash
	}
	return nil
}

func findParent(ctx context.Context, commits []*model.Commit, hash string, lookup ParentLookup) (*model.Commit, error) {
	if lookup != nil {
		return lookup(ctx, hash)
	}
	for _, c := range commits {
		if c.Hash == hash {
			return c, nil
		}
	}
	return nil, nil
}
