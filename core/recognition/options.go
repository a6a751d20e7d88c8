package recognition

import "time"

const DefaultInterruptionDelay = 750 * time.Millisecond

type Option func(*Engine)

// WithLanguage sets the language the backend should expect.
func WithLanguage(language string) Option {
	return func(e *Engine) {
		e.language = language
	}
}

// WithAutoDetect lets the backend pick the language from candidates. The
// detected language is attached to every utterance.
func WithAutoDetect(candidates ...string) Option {
	return func(e *Engine) {
		e.autoDetect = append([]string(nil), candidates...)
	}
}

// WithInterruptionDelay sets how long after a soft interruption speech is
// still accepted.
func WithInterruptionDelay(delay time.Duration) Option {
	return func(e *Engine) {
		if delay >= 0 {
			e.interruptionDelay = delay
		}
	}
}

// WithPhrases seeds the phrase hints sent with every session.
func WithPhrases(phrases ...string) Option {
	return func(e *Engine) {
		e.phrases = append(e.phrases, phrases...)
	}
}
