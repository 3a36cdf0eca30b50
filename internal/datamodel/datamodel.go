// Package datamodel is the application-facing API of a strata replica.
//
// A DataModel stamps local changes with the hybrid clock, appends them to
// the commit log and keeps snapshots current. It also answers sync
// requests and history queries. Every mutation holds the store's write
// lock and runs in a single transaction.
package datamodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/chain"
	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/hlc"
	"github.com/roach88/strata/internal/metrics"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/syncer"
)

// ClientVersion is stamped on locally authored commits.
const ClientVersion = "strata/0.1.0"

var (
	// ErrNoChanges is returned when a commit would carry no changes.
	ErrNoChanges = errors.New("commit has no changes")
	// ErrNotFound is returned by lookups that find nothing.
	ErrNotFound = errors.New("not found")
)

// DataModel is one replica bound to one store.
type DataModel struct {
	store    *store.Store
	lock     sync.Locker
	clock    *hlc.Clock
	clientID uuid.UUID
	logger   *slog.Logger

	validateChain bool
	author        model.CommitMetadata
	newID         func() uuid.UUID

	// options collected before Open resolves them
	wantClientID uuid.UUID
	timeSource   hlc.TimeSource
}

// Option configures a DataModel.
type Option func(*DataModel)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(dm *DataModel) {
		dm.logger = logger
	}
}

// WithClientID pins the replica identity. The store rejects an id that
// differs from the one it already holds.
func WithClientID(id uuid.UUID) Option {
	return func(dm *DataModel) {
		dm.wantClientID = id
	}
}

// WithTimeSource replaces the wall clock used for commit timestamps.
func WithTimeSource(src hlc.TimeSource) Option {
	return func(dm *DataModel) {
		dm.timeSource = src
	}
}

// WithValidateChain re-validates the whole hash chain after every mutation.
func WithValidateChain(enabled bool) Option {
	return func(dm *DataModel) {
		dm.validateChain = enabled
	}
}

// WithAuthor sets the author recorded on local commits.
func WithAuthor(name, id string) Option {
	return func(dm *DataModel) {
		dm.author.AuthorName = name
		dm.author.AuthorID = id
	}
}

// WithIDGenerator replaces the commit id generator. Defaults to UUIDv7.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(dm *DataModel) {
		dm.newID = gen
	}
}

// WithConfig applies the client id, chain validation and author settings.
func WithConfig(cfg *config.Config) Option {
	return func(dm *DataModel) {
		dm.wantClientID = cfg.ParsedClientID()
		dm.validateChain = cfg.ValidateChain
		dm.author.AuthorName = cfg.Author.Name
		dm.author.AuthorID = cfg.Author.ID
	}
}

// Open binds a DataModel to st. It resolves the replica's client id and
// seeds the hybrid clock from the latest stored commit so new timestamps
// never regress behind history.
func Open(ctx context.Context, st *store.Store, opts ...Option) (*DataModel, error) {
	dm := &DataModel{
		store:  st,
		lock:   st.Lock(),
		logger: slog.Default(),
		author: model.CommitMetadata{ClientVersion: ClientVersion},
		newID: func() uuid.UUID {
			return uuid.Must(uuid.NewV7())
		},
	}
	for _, opt := range opts {
		opt(dm)
	}

	var clockOpts []hlc.Option
	if dm.timeSource != nil {
		clockOpts = append(clockOpts, hlc.WithTimeSource(dm.timeSource))
	}

	dm.lock.Lock()
	defer dm.lock.Unlock()
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		id, err := tx.ClientID(ctx, dm.wantClientID)
		if err != nil {
			return err
		}
		dm.clientID = id

		latest, err := tx.LatestCommit(ctx)
		if err != nil {
			return err
		}
		if latest != nil {
			dm.clock = hlc.NewAt(latest.HybridDateTime, clockOpts...)
		} else {
			dm.clock = hlc.New(clockOpts...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open data model: %w", err)
	}

	dm.logger.Debug("data model opened", "client_id", dm.clientID, "database", st.Path())
	return dm, nil
}

// ClientID returns the replica's client id.
func (dm *DataModel) ClientID() uuid.UUID {
	return dm.clientID
}

// Store returns the underlying store.
func (dm *DataModel) Store() *store.Store {
	return dm.store
}

// AddChange commits a single change.
func (dm *DataModel) AddChange(ctx context.Context, change model.Change) (*model.Commit, error) {
	return dm.AddChanges(ctx, change)
}

// AddChanges commits changes, in order, as one local commit.
func (dm *DataModel) AddChanges(ctx context.Context, changes ...model.Change) (*model.Commit, error) {
	return dm.AddChangesWithMetadata(ctx, model.CommitMetadata{}, changes...)
}

// AddChangesWithMetadata commits changes with extra metadata. Author and
// client version default to the DataModel's settings when left empty.
func (dm *DataModel) AddChangesWithMetadata(ctx context.Context, meta model.CommitMetadata, changes ...model.Change) (*model.Commit, error) {
	if len(changes) == 0 {
		return nil, ErrNoChanges
	}
	if meta.AuthorName == "" {
		meta.AuthorName = dm.author.AuthorName
	}
	if meta.AuthorID == "" {
		meta.AuthorID = dm.author.AuthorID
	}
	if meta.ClientVersion == "" {
		meta.ClientVersion = dm.author.ClientVersion
	}

	dm.lock.Lock()
	defer dm.lock.Unlock()

	commit := model.NewCommit(dm.newID(), dm.clientID, dm.clock.Now(), meta, changes...)
	if _, err := dm.reconcile(ctx, metrics.KindLocal, []*model.Commit{commit}); err != nil {
		return nil, fmt.Errorf("add changes: %w", err)
	}

	dm.logger.Debug("commit added",
		"commit", commit.ID,
		"changes", len(changes),
		"hash", commit.Hash,
	)
	return commit, nil
}

// AddRangeFromSync merges commits received from another replica.
// Commits already present are ignored. Returns the number of commits
// that were new.
func (dm *DataModel) AddRangeFromSync(ctx context.Context, commits []*model.Commit) (int, error) {
	if len(commits) == 0 {
		return 0, nil
	}

	timestamps := make([]model.HybridTimestamp, len(commits))
	for i, c := range commits {
		timestamps[i] = c.HybridDateTime
	}

	dm.lock.Lock()
	defer dm.lock.Unlock()

	dm.clock.Observe(timestamps...)
	result, err := dm.reconcile(ctx, metrics.KindSync, commits)
	if err != nil {
		return 0, fmt.Errorf("add range from sync: %w", err)
	}

	dm.logger.Debug("merged remote commits",
		"received", len(commits),
		"added", len(result.Added),
	)
	return len(result.Added), nil
}

// reconcile merges commits inside one transaction and records metrics.
// Caller holds dm.lock.
func (dm *DataModel) reconcile(ctx context.Context, kind string, commits []*model.Commit) (*syncer.MergeResult, error) {
	start := time.Now()
	var result *syncer.MergeResult

	err := dm.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		result, err = syncer.Merge(ctx, tx, commits, engine.WithLogger(dm.logger))
		if err != nil {
			return err
		}
		if dm.validateChain && len(result.Added) > 0 {
			return validate(ctx, tx)
		}
		return nil
	})

	seconds := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordReconciliation(metrics.Pass{Kind: kind}, metrics.ResultError, seconds)
		dm.logger.Error("reconciliation failed", "kind", kind, "error", err)
		return nil, err
	}
	if result.Snapshots == nil {
		metrics.RecordReconciliation(metrics.Pass{Kind: kind}, metrics.ResultNoop, seconds)
		return result, nil
	}
	metrics.RecordReconciliation(pass(kind, len(result.Added), result.Snapshots), metrics.ResultSuccess, seconds)
	return result, nil
}

func pass(kind string, added int, r *engine.Result) metrics.Pass {
	return metrics.Pass{
		Kind:          kind,
		Added:         added,
		Replayed:      r.Replayed,
		Rechained:     len(r.Rechained),
		Roots:         len(r.Roots),
		Intermediates: len(r.Intermediates),
		Current:       len(r.Current),
		Cascaded:      r.Cascaded,
	}
}

func validate(ctx context.Context, tx *store.Tx) error {
	commits, err := tx.CurrentCommits(ctx)
	if err != nil {
		return err
	}
	return chain.Validate(ctx, commits, tx.FindCommitByHash)
}
