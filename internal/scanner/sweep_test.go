package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/internal/store"
)

func TestBuildSweepStepsShortRangeUsesMidpoint(t *testing.T) {
	ranges := []Range{{StartHz: 450_000_000, EndHz: 450_100_000}}
	steps := buildSweepSteps(ranges, 2_048_000)
	require.Len(t, steps, 1)
	assert.Equal(t, uint64(450_050_000), steps[0])
}

func TestBuildSweepStepsTilesLongRange(t *testing.T) {
	ranges := []Range{{StartHz: 450_000_000, EndHz: 450_000_000 + 5_000_000}}
	steps := buildSweepSteps(ranges, 2_048_000)
	require.NotEmpty(t, steps)
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, steps[i], steps[i-1])
	}
	assert.LessOrEqual(t, steps[len(steps)-1], ranges[0].EndHz)
}

func TestBuildSweepStepsSkipsDegenerateRange(t *testing.T) {
	ranges := []Range{{StartHz: 1000, EndHz: 1000}, {StartHz: 500_000_000, EndHz: 500_002_000_000}}
	steps := buildSweepSteps(ranges, 2_048_000)
	assert.NotEmpty(t, steps)
	assert.NotContains(t, steps, uint64(1000))
}

func TestPriorityPlannerInterleavesAfterInterval(t *testing.T) {
	steps := []uint64{1, 2, 3, 4, 5, 6}
	p := newPriorityPlanner(steps, 2)
	priority := []store.Channel{{ID: 1, Frequency: 999}}

	seq := make([]uint64, 0, 6)
	for i := 0; i < 6; i++ {
		seq = append(seq, p.next(priority))
	}
	// every third call (after 2 normal steps) should be the priority channel
	assert.Equal(t, uint64(999), seq[2])
	assert.Equal(t, uint64(999), seq[5])
	assert.Equal(t, uint64(1), seq[0])
	assert.Equal(t, uint64(2), seq[1])
}

func TestPriorityPlannerWithoutPriorityChannelsJustSweeps(t *testing.T) {
	steps := []uint64{10, 20, 30}
	p := newPriorityPlanner(steps, 1)
	var got []uint64
	for i := 0; i < 5; i++ {
		got = append(got, p.next(nil))
	}
	assert.Equal(t, []uint64{10, 20, 30, 10, 20}, got)
}

func TestPriorityPlannerNoStepsReturnsZero(t *testing.T) {
	p := newPriorityPlanner(nil, 3)
	assert.Equal(t, uint64(0), p.next(nil))
}
