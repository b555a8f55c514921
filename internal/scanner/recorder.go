package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwsl/sdrcore/internal/dsp"
)

const recordingSampleRateHz = 8000
const minRecordingSamples = 400 // 50ms at 8kHz

// recorder accumulates demodulated audio while the scanner is PARKED and
// flushes it to a WAV file on park exit.
type recorder struct {
	dir     string
	samples []float32
}

func newRecorder(dir string) *recorder {
	return &recorder{dir: dir}
}

func (r *recorder) reset() { r.samples = r.samples[:0] }

func (r *recorder) append(s []float32) { r.samples = append(r.samples, s...) }

// long reports whether the accumulated recording meets the minimum
// duration required before persisting.
func (r *recorder) long() bool { return len(r.samples) >= minRecordingSamples }

// flush WAV-encodes the recording and writes it under dir, returning the
// path written. Caller must have already checked long(). The filename
// carries an ISO-8601 timestamp, the frequency in MHz, and the channel
// label (or "unknown" when the frequency matches no configured channel).
func (r *recorder) flush(freqHz uint64, channelLabel string, at time.Time) (string, error) {
	if r.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("scanner: create recording dir: %w", err)
	}
	if channelLabel == "" {
		channelLabel = "unknown"
	}
	ts := at.UTC().Format("20060102T150405Z")
	freqMHz := float64(freqHz) / 1e6
	name := fmt.Sprintf("%s_%.4fMHz_%s.wav", ts, freqMHz, sanitizeFilenamePart(channelLabel))
	path := filepath.Join(r.dir, name)
	data := dsp.EncodeWAVPCM16(r.samples, recordingSampleRateHz, 1)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("scanner: write recording: %w", err)
	}
	return path, nil
}

// sanitizeFilenamePart replaces path separators and spaces in a channel
// label so it can't escape the recording directory or break filenames.
func sanitizeFilenamePart(s string) string {
	s = strings.ReplaceAll(s, string(filepath.Separator), "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
