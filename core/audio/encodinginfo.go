package audio

import (
	"bytes"
	"time"
)

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// EncodingInfo describes mono raw audio exchanged with the speech backends
// and the local devices.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

// IsZero reports whether the encoding is missing either of its fields.
func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) bytesPerSecond() int {
	if size := e.Format.ByteSize(); size > 0 && e.SampleRate > 0 {
		return e.SampleRate * size
	}
	return 0
}

// Duration returns how long size bytes of audio play for.
func (e EncodingInfo) Duration(size int) time.Duration {
	rate := e.bytesPerSecond()
	if rate == 0 {
		return 0
	}
	return time.Duration(size) * time.Second / time.Duration(rate)
}

// Bytes returns how many bytes hold d of audio, rounded down to whole
// samples.
func (e EncodingInfo) Bytes(d time.Duration) int {
	rate := e.bytesPerSecond()
	if rate == 0 || d <= 0 {
		return 0
	}
	samples := int(time.Duration(e.SampleRate) * d / time.Second)
	return samples * e.Format.ByteSize()
}

// SilenceValue is the byte that encodes silence in the format. Linear PCM
// silence is all zeroes.
func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}
	return 0
}

// Silence returns d of silent audio.
func (e EncodingInfo) Silence(d time.Duration) []byte {
	return bytes.Repeat([]byte{e.SilenceValue()}, e.Bytes(d))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

// ByteSize is the size of a single sample, or -1 for unknown formats.
func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}
