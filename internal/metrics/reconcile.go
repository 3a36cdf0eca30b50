package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation kinds
const (
	KindLocal      = "local"
	KindSync       = "sync"
	KindRegenerate = "regenerate"
)

// Reconciliation results
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Snapshot kinds
const (
	SnapshotRoot         = "root"
	SnapshotIntermediate = "intermediate"
	SnapshotCurrent      = "current"
)

var (
	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_reconciliations_total",
			Help: "Total number of reconciliation passes by kind and result",
		},
		[]string{"kind", "result"},
	)

	reconcileDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes including the transaction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	commitsAddedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_commits_added_total",
			Help: "Total number of commits added to the log by kind",
		},
		[]string{"kind"},
	)

	commitsReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_commits_replayed_total",
			Help: "Total number of commits replayed by the snapshot engine",
		},
	)

	commitsRechainedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_commits_rechained_total",
			Help: "Total number of commits whose hash was rewritten after an earlier insertion",
		},
	)

	snapshotsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_snapshots_written_total",
			Help: "Total number of snapshots produced by kind",
		},
		[]string{"kind"},
	)

	cascadeSnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_cascade_snapshots_total",
			Help: "Total number of snapshots produced by reference removal",
		},
	)
)

func init() {
	MustRegister(
		reconciliationsTotal,
		reconcileDurationSeconds,
		commitsAddedTotal,
		commitsReplayedTotal,
		commitsRechainedTotal,
		snapshotsWrittenTotal,
		cascadeSnapshotsTotal,
	)
}

// Pass summarizes one reconciliation for recording.
type Pass struct {
	Kind          string
	Added         int
	Replayed      int
	Rechained     int
	Roots         int
	Intermediates int
	Current       int
	Cascaded      int
}

// RecordReconciliation records a finished pass with its result
func RecordReconciliation(p Pass, result string, seconds float64) {
	reconciliationsTotal.WithLabelValues(p.Kind, result).Inc()
	reconcileDurationSeconds.WithLabelValues(p.Kind).Observe(seconds)
	if result != ResultSuccess {
		return
	}
	commitsAddedTotal.WithLabelValues(p.Kind).Add(float64(p.Added))
	commitsReplayedTotal.Add(float64(p.Replayed))
	commitsRechainedTotal.Add(float64(p.Rechained))
	snapshotsWrittenTotal.WithLabelValues(SnapshotRoot).Add(float64(p.Roots))
	snapshotsWrittenTotal.WithLabelValues(SnapshotIntermediate).Add(float64(p.Intermediates))
	snapshotsWrittenTotal.WithLabelValues(SnapshotCurrent).Add(float64(p.Current))
	cascadeSnapshotsTotal.Add(float64(p.Cascaded))
}
