package events

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Handler receives events. It is called from the goroutine that produced the
// event and should not block.
type Handler func(Event)

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// Turn is embedded by events that belong to a turn.
type Turn struct {
	TurnID uuid.UUID
}
