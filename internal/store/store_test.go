package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSeedsChannelsThenAddAppends(t *testing.T) {
	s := openTestStore(t)
	chans, err := s.ListChannels()
	require.NoError(t, err)
	assert.Len(t, chans, len(seedChannels))

	id, err := s.AddChannel(Channel{Frequency: 400_000_000, Label: "extra", Mode: "AM", Enabled: true})
	require.NoError(t, err)
	assert.Positive(t, id)

	chans, err = s.ListChannels()
	require.NoError(t, err)
	assert.Len(t, chans, len(seedChannels)+1)
}

func TestUpdateAndDeleteChannel(t *testing.T) {
	s := openTestStore(t)
	id, err := s.AddChannel(Channel{Frequency: 100_000_000, Label: "orig", Mode: "AM", Priority: 5, Enabled: true})
	require.NoError(t, err)

	newLabel := "renamed"
	newPriority := 1
	require.NoError(t, s.UpdateChannel(id, ChannelPatch{Label: &newLabel, Priority: &newPriority}))

	chans, err := s.ListChannels()
	require.NoError(t, err)
	var found *Channel
	for i := range chans {
		if chans[i].ID == id {
			found = &chans[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "renamed", found.Label)
	assert.Equal(t, 1, found.Priority)

	require.NoError(t, s.DeleteChannel(id))
	require.NoError(t, s.DeleteChannel(id)) // idempotent
}

func TestLockoutAddRemoveIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AddLockout(462_562_500, "test"))
	require.NoError(t, s.AddLockout(462_562_500, "test again")) // unique, ignored

	lockouts, err := s.ListLockouts()
	require.NoError(t, err)
	assert.Len(t, lockouts, 1)

	require.NoError(t, s.RemoveLockout(lockouts[0].ID))
	require.NoError(t, s.RemoveLockout(lockouts[0].ID))
	lockouts, err = s.ListLockouts()
	require.NoError(t, err)
	assert.Empty(t, lockouts)
}

func TestHitLogPrunedTo1000(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 1010; i++ {
		_, err := s.InsertHit(Hit{TS: int64(i), Frequency: 462_000_000, StrengthDB: -40, DurationMs: 500})
		require.NoError(t, err)
	}
	hits, err := s.RecentHits(2000)
	require.NoError(t, err)
	assert.Len(t, hits, hitRetentionLimit)
	assert.Equal(t, int64(1009), hits[0].TS, "newest hit must survive pruning")
}

func TestUpdateHitAudioPath(t *testing.T) {
	s := openTestStore(t)
	id, err := s.InsertHit(Hit{TS: 1, Frequency: 462_000_000, StrengthDB: -30, DurationMs: 1000})
	require.NoError(t, err)
	require.NoError(t, s.UpdateHitAudioPath(id, "/tmp/clip.wav"))

	hits, err := s.RecentHits(1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.NotNil(t, hits[0].AudioClipPath)
	assert.Equal(t, "/tmp/clip.wav", *hits[0].AudioClipPath)
}
