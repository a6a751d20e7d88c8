package deepgram

import (
	"fmt"

	"github.com/koscakluka/ema-voice/core/audio"
)

// checkEncoding rejects encodings the listen endpoint does not accept.
func checkEncoding(encoding audio.EncodingInfo) error {
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return fmt.Errorf("unsupported sample rate %d for %s encoding", encoding.SampleRate, encoding.Format.Name())
		}
	default:
		return fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	return nil
}
