package events

const (
	// KindTurnStarted identifies the start of a turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnInterrupted identifies a turn fenced off before it finished.
	KindTurnInterrupted Kind = "turn_state.interrupted"
	// KindTurnCompleted identifies a fully spoken turn.
	KindTurnCompleted Kind = "turn_state.completed"
)

// TurnStarted marks a turn being queued for the user's prompt.
type TurnStarted struct {
	Base
	Turn
	Prompt string
}

func NewTurnStarted(turn Turn, prompt string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), Turn: turn, Prompt: prompt}
}

// TurnInterrupted carries what the assistant managed to say before the turn
// was interrupted.
type TurnInterrupted struct {
	Base
	Turn
	Spoken string
}

func NewTurnInterrupted(turn Turn, spoken string) TurnInterrupted {
	return TurnInterrupted{Base: NewBase(KindTurnInterrupted), Turn: turn, Spoken: spoken}
}

type TurnCompleted struct {
	Base
	Turn
	Response string
}

func NewTurnCompleted(turn Turn, response string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), Turn: turn, Response: response}
}
