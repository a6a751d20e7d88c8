package recognition

import "context"

// StartConfig is passed to the backend for every session.
type StartConfig struct {
	// Language is the expected language, ignored when AutoDetect is set
	Language string
	// AutoDetect lists candidate languages the backend picks from
	AutoDetect []string
	// Phrases are hints the backend should bias recognition towards
	Phrases []string
}

// Backend turns captured audio into results. Start must return once the
// backend is listening; results are reported through emit, which is safe to
// call from any goroutine. Stopped or Canceled must be the last event.
type Backend interface {
	Start(ctx context.Context, config StartConfig, emit func(Event)) (Handle, error)
}

// Handle controls a running recognition. Stop should make the backend
// deliver whatever it already heard and then emit Stopped.
type Handle interface {
	Stop(ctx context.Context) error
}
