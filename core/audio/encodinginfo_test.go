package audio

import (
	"testing"
	"time"
)

func TestEncodingInfoDuration(t *testing.T) {
	testCases := []struct {
		name     string
		encoding EncodingInfo
		size     int
		expected time.Duration
	}{
		{name: "linear16", encoding: GetDefaultEncodingInfo(), size: 32000, expected: time.Second},
		{name: "mulaw", encoding: EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}, size: 4000, expected: 500 * time.Millisecond},
		{name: "unknown format", encoding: EncodingInfo{SampleRate: 8000, Format: "opus"}, size: 4000},
		{name: "zero", size: 4000},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.encoding.Duration(testCase.size); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestEncodingInfoBytesRoundToWholeSamples(t *testing.T) {
	encoding := GetDefaultEncodingInfo()
	if got := encoding.Bytes(50 * time.Millisecond); got != 1600 {
		t.Fatalf("expected 1600 bytes, got %d", got)
	}
	if got := encoding.Bytes(time.Second / 3); got%2 != 0 {
		t.Fatalf("expected whole linear16 samples, got %d bytes", got)
	}
	if got := encoding.Duration(encoding.Bytes(time.Second)); got != time.Second {
		t.Fatalf("expected a second of audio, got %v", got)
	}
}

func TestEncodingInfoSilence(t *testing.T) {
	silence := EncodingInfo{SampleRate: 8000, Format: EncodingALaw}.Silence(10 * time.Millisecond)
	if len(silence) != 80 {
		t.Fatalf("expected 80 bytes, got %d", len(silence))
	}
	for _, b := range silence {
		if b != 0x55 {
			t.Fatalf("expected alaw silence, got %#x", b)
		}
	}
	if silence := (EncodingInfo{}).Silence(time.Second); len(silence) != 0 {
		t.Fatalf("expected no silence for an empty encoding, got %d bytes", len(silence))
	}
}
