package dsp

import (
	"bytes"
	"encoding/binary"
)

// wavHeader is the canonical 44-byte RIFF/WAVE/fmt/data layout, emitted in
// one shot since recording buffers accumulate fully in memory before
// encoding rather than streaming to disk incrementally.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAVPCM16 encodes mono or multi-channel f32 samples (interleaved, in
// [-1, 1]) into a canonical 44-byte-header PCM16 WAV file, clamping samples
// before scaling by 32767.
func EncodeWAVPCM16(samples []float32, sampleRate uint32, channels uint16) []byte {
	dataSize := uint32(len(samples) * 2)
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(channels) * 2,
		BlockAlign:    channels * 2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := new(bytes.Buffer)
	buf.Grow(44 + int(dataSize))
	binary.Write(buf, binary.LittleEndian, &h)
	for _, s := range samples {
		v := Clamp(float64(s))
		binary.Write(buf, binary.LittleEndian, int16(v*32767))
	}
	return buf.Bytes()
}
