package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwsl/sdrcore/internal/config"
)

func TestRtltcpAddrAppliesDefaults(t *testing.T) {
	assert.Equal(t, "127.0.0.1:1234", rtltcpAddr(config.RTLTCPConfig{}))
	assert.Equal(t, "192.168.1.5:1235", rtltcpAddr(config.RTLTCPConfig{Host: "192.168.1.5", Port: 1235}))
}

func TestScannerRangesConverts(t *testing.T) {
	out := scannerRanges([]config.Range{
		{StartHz: 450_000_000, EndHz: 460_000_000},
		{StartHz: 462_000_000, EndHz: 468_000_000},
	})
	assert.Len(t, out, 2)
	assert.Equal(t, uint64(450_000_000), out[0].StartHz)
	assert.Equal(t, uint64(468_000_000), out[1].EndHz)
}

func TestFloat32ToBytesRoundTrips(t *testing.T) {
	samples := []float32{0, 1.5, -1.5, 3.14159}
	out := float32ToBytes(samples)
	assert.Len(t, out, len(samples)*4)

	for i, want := range samples {
		bits := uint32(out[i*4]) | uint32(out[i*4+1])<<8 | uint32(out[i*4+2])<<16 | uint32(out[i*4+3])<<24
		got := math.Float32frombits(bits)
		assert.Equal(t, want, got)
	}
}
