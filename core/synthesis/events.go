package synthesis

import "time"

// Event is emitted by a Backend while it synthesizes. The set of variants is
// closed: SessionStarted, WordBoundary, SessionCompleted and SessionCanceled.
type Event interface {
	synthesisEvent()
}

// SessionStarted marks the moment audio for the session starts playing.
type SessionStarted struct {
	At time.Time
}

// WordBoundary reports a word (or punctuation mark) and where it sits in the
// session's audio.
type WordBoundary struct {
	Text        string
	AudioOffset time.Duration
	Duration    time.Duration
	// WordLength is the number of characters the boundary spans in the input
	WordLength int
}

type SessionCompleted struct{}

// SessionCanceled ends the session early. Err is nil when the backend gave
// no reason.
type SessionCanceled struct {
	Err error
}

func (SessionStarted) synthesisEvent()   {}
func (WordBoundary) synthesisEvent()     {}
func (SessionCompleted) synthesisEvent() {}
func (SessionCanceled) synthesisEvent()  {}
