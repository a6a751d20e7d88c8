package synthesis

import (
	"context"

	"github.com/koscakluka/ema-voice/core/ssml"
)

// Backend turns markup into audio. Synthesize must return once the request
// has been issued; progress is reported through emit, which is safe to call
// from any goroutine and must not be called after SessionCompleted or
// SessionCanceled.
type Backend interface {
	Dialect() ssml.Dialect
	Synthesize(ctx context.Context, markup string, emit func(Event)) (Handle, error)
}

// Handle controls a synthesis in flight.
type Handle interface {
	// Stop halts synthesis and playback. It is safe to call more than once
	// and after the session has ended.
	Stop(ctx context.Context) error
}
