package recognition

import "time"

// Event is emitted by a Backend while it listens. The set of variants is
// closed: Started, Recognized, Stopped and Canceled.
type Event interface {
	recognitionEvent()
}

// Started marks the moment the backend started receiving audio. Result
// offsets are measured from it.
type Started struct {
	At time.Time
}

// Recognized carries one finalized utterance.
type Recognized struct {
	Result Result
}

// Stopped is the last event of a session that ended normally.
type Stopped struct{}

// Canceled ends the session early. Err is nil when the backend gave no
// reason.
type Canceled struct {
	Err error
}

func (Started) recognitionEvent()    {}
func (Recognized) recognitionEvent() {}
func (Stopped) recognitionEvent()    {}
func (Canceled) recognitionEvent()   {}
