package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwsl/sdrcore/internal/store"
)

func TestLockoutSetWithinRadiusIsLocked(t *testing.T) {
	l := newLockoutSet()
	l.add(462_562_500, 1)

	assert.True(t, l.isLocked(462_562_500))
	assert.True(t, l.isLocked(462_560_000))
	assert.True(t, l.isLocked(462_567_000))
	assert.False(t, l.isLocked(462_580_000))
}

func TestLockoutSetReloadReplacesContents(t *testing.T) {
	l := newLockoutSet()
	l.add(100_000_000, 1)
	require := assert.New(t)
	require.True(l.isLocked(100_000_000))

	l.reload([]store.Lockout{{ID: 2, Frequency: 200_000_000}})
	require.False(l.isLocked(100_000_000))
	require.True(l.isLocked(200_000_000))
}

func TestRoundTo1kHz(t *testing.T) {
	assert.Equal(t, uint64(462_563_000), roundTo1kHz(462_562_600))
	assert.Equal(t, uint64(462_562_000), roundTo1kHz(462_562_400))
}
