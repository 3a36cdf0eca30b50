package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/roach88/strata/internal/lexicon"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/testutil"
)

var testClient = testutil.ID(0xC)

// createTestStore creates a new on-disk store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCommit creates a commit n seconds after testutil.Epoch.
func createTestCommit(id uint64, seconds int, changes ...model.Change) *model.Commit {
	ts := model.NewHybridTimestamp(testutil.Epoch.Add(time.Duration(seconds)*time.Second), 0)
	return model.NewCommit(testutil.ID(0x1000+id), testClient, ts, model.CommitMetadata{AuthorName: "tester"}, changes...)
}

// withTx runs fn in a committed transaction and fails the test on error.
func withTx(t *testing.T, s *Store, fn func(ctx context.Context, tx *Tx)) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		fn(ctx, tx)
		return nil
	}))
}
