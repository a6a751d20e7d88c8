package audio

import "context"

// Player plays raw audio in the order it is sent.
type Player interface {
	SendAudio(audio []byte) error
	// Mark registers a callback for the moment playback reaches the end of
	// the audio sent so far. The callback runs on its own goroutine.
	Mark(name string, callback func(string)) error
	// ClearBuffer drops everything not yet played, including pending marks.
	ClearBuffer()
}

// Capturer streams microphone audio to onAudio until stopped.
type Capturer interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}
