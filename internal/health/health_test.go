package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyThresholds(t *testing.T) {
	assert.Equal(t, StatusOK, classify(0.5, 0.5, 0.5, 4))
	assert.Equal(t, StatusWarning, classify(4, 4, 4, 4))
	assert.Equal(t, StatusCritical, classify(8, 8, 8, 4))
	assert.Equal(t, StatusOK, classify(100, 100, 100, 0))
}

func TestTrackerSamplesAndReportsSnapshot(t *testing.T) {
	tr := New(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr.Start(ctx)
	defer tr.Stop()

	require.Eventually(t, func() bool {
		return len(tr.History()) > 0
	}, time.Second, 10*time.Millisecond)

	snap := tr.Snapshot()
	assert.GreaterOrEqual(t, snap.Load1, 0.0)
	assert.NotZero(t, snap.ProcessAge)
	assert.NotEmpty(t, snap.InstanceID)
}

func TestInstanceIDIsStablePerTracker(t *testing.T) {
	tr := New(time.Hour)
	first := tr.Snapshot().InstanceID
	second := tr.Snapshot().InstanceID
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, New(time.Hour).Snapshot().InstanceID)
}

func TestTrackerStartStopIsIdempotent(t *testing.T) {
	tr := New(time.Hour)
	ctx := context.Background()
	tr.Start(ctx)
	tr.Start(ctx)
	tr.Stop()
	tr.Stop()
}

func TestHistoryIsBoundedAndCopied(t *testing.T) {
	tr := New(time.Millisecond)
	for i := 0; i < historyLimit+10; i++ {
		tr.sample()
	}
	h := tr.History()
	assert.LessOrEqual(t, len(h), historyLimit)

	h[0].Load1 = -999
	assert.NotEqual(t, float64(-999), tr.History()[0].Load1)
}
