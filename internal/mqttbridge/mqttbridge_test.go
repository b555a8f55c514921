package mqttbridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/internal/scanner"
)

func TestEncodeEventBuildsTopicFromPrefixAndType(t *testing.T) {
	ev := scanner.Event{Type: "scanner_hit", State: "parked", FrequencyHz: 462_562_500, StrengthDB: -32.5}
	now := time.Unix(1700000000, 0)

	topic, data, err := encodeEvent("sdrcore", ev, now)
	require.NoError(t, err)
	assert.Equal(t, "sdrcore/scanner_hit", topic)

	var decoded eventPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(1700000000), decoded.Timestamp)
	assert.Equal(t, "scanner_hit", decoded.Type)
	assert.Equal(t, "parked", decoded.State)
	assert.Equal(t, uint64(462_562_500), decoded.FrequencyHz)
	assert.InDelta(t, -32.5, decoded.StrengthDB, 0.0001)
}

func TestEncodeEventOmitsEmptyFields(t *testing.T) {
	ev := scanner.Event{Type: "scanner_state", State: "scanning"}
	_, data, err := encodeEvent("sdrcore", ev, time.Now())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	_, hasFreq := raw["frequency_hz"]
	_, hasReason := raw["reason"]
	assert.False(t, hasFreq)
	assert.False(t, hasReason)
}
