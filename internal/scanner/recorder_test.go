package scanner

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderLongRequiresMinimumSamples(t *testing.T) {
	r := newRecorder(t.TempDir())
	assert.False(t, r.long())
	r.append(make([]float32, minRecordingSamples-1))
	assert.False(t, r.long())
	r.append([]float32{0})
	assert.True(t, r.long())
}

func TestRecorderResetClearsSamples(t *testing.T) {
	r := newRecorder(t.TempDir())
	r.append(make([]float32, minRecordingSamples))
	require.True(t, r.long())
	r.reset()
	assert.False(t, r.long())
}

func TestRecorderFlushWritesWAVFile(t *testing.T) {
	dir := t.TempDir()
	r := newRecorder(dir)
	r.append(make([]float32, minRecordingSamples))

	path, err := r.flush(462_562_500, "fire-dispatch", time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.Contains(t, path, "20231114T221320Z")
	assert.Contains(t, path, "462.5625MHz")
	assert.Contains(t, path, "fire-dispatch")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(44)) // WAV header alone is 44 bytes
}

func TestRecorderFlushUsesUnknownForUnlabeledChannel(t *testing.T) {
	dir := t.TempDir()
	r := newRecorder(dir)
	r.append(make([]float32, minRecordingSamples))

	path, err := r.flush(462_562_500, "", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Contains(t, path, "unknown.wav")
}

func TestRecorderFlushNoopWithoutDir(t *testing.T) {
	r := newRecorder("")
	r.append(make([]float32, minRecordingSamples))
	path, err := r.flush(462_562_500, "fire-dispatch", time.Now())
	require.NoError(t, err)
	assert.Empty(t, path)
}
