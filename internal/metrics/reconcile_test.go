package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordReconciliation_Success(t *testing.T) {
	beforeOK := testutil.ToFloat64(reconciliationsTotal.WithLabelValues(KindSync, ResultSuccess))
	beforeReplayed := testutil.ToFloat64(commitsReplayedTotal)
	beforeRoots := testutil.ToFloat64(snapshotsWrittenTotal.WithLabelValues(SnapshotRoot))
	beforeAdded := testutil.ToFloat64(commitsAddedTotal.WithLabelValues(KindSync))

	RecordReconciliation(Pass{Kind: KindSync, Added: 2, Replayed: 3, Roots: 4, Cascaded: 1}, ResultSuccess, 0.01)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(reconciliationsTotal.WithLabelValues(KindSync, ResultSuccess)))
	assert.Equal(t, beforeReplayed+3, testutil.ToFloat64(commitsReplayedTotal))
	assert.Equal(t, beforeRoots+4, testutil.ToFloat64(snapshotsWrittenTotal.WithLabelValues(SnapshotRoot)))
	assert.Equal(t, beforeAdded+2, testutil.ToFloat64(commitsAddedTotal.WithLabelValues(KindSync)))
}

func TestRecordReconciliation_ErrorSkipsVolumes(t *testing.T) {
	beforeErr := testutil.ToFloat64(reconciliationsTotal.WithLabelValues(KindLocal, ResultError))
	beforeReplayed := testutil.ToFloat64(commitsReplayedTotal)

	RecordReconciliation(Pass{Kind: KindLocal, Replayed: 10}, ResultError, 0.5)

	assert.Equal(t, beforeErr+1, testutil.ToFloat64(reconciliationsTotal.WithLabelValues(KindLocal, ResultError)))
	assert.Equal(t, beforeReplayed, testutil.ToFloat64(commitsReplayedTotal))
}

func TestRegistry_GathersStrataMetrics(t *testing.T) {
	RecordReconciliation(Pass{Kind: KindRegenerate}, ResultNoop, 0)

	families, err := Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["strata_reconciliations_total"])
	assert.True(t, names["strata_reconcile_duration_seconds"])
}

func TestSnapshot_FlattensLabels(t *testing.T) {
	RecordReconciliation(Pass{Kind: KindSync, Added: 1}, ResultSuccess, 0.02)

	values, err := Snapshot()
	require.NoError(t, err)

	want := testutil.ToFloat64(reconciliationsTotal.WithLabelValues(KindSync, ResultSuccess))
	assert.Equal(t, want, values[`strata_reconciliations_total{kind="sync",result="success"}`])
	assert.GreaterOrEqual(t, values[`strata_reconcile_duration_seconds{kind="sync"}_count`], 1.0)
	for key := range values {
		assert.True(t, strings.HasPrefix(key, Prefix), key)
	}
}
