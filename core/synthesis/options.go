package synthesis

import "time"

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultLead         = 0
)

type Option func(*Engine)

// WithLead shifts every word's scheduled time. A positive lead yields words
// later than their audio, a negative one earlier.
func WithLead(lead time.Duration) Option {
	return func(e *Engine) {
		e.lead = lead
	}
}

// WithPollInterval sets the longest time the engine waits before checking
// for new events and interruptions again.
func WithPollInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.pollInterval = interval
		}
	}
}

// WithLanguage sets the markup language tag.
func WithLanguage(language string) Option {
	return func(e *Engine) {
		e.language = language
	}
}
