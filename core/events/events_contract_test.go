package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/speech"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	turn := Turn{TurnID: uuid.New()}

	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "turn started", event: NewTurnStarted(turn, "hi"), expected: KindTurnStarted},
		{name: "turn interrupted", event: NewTurnInterrupted(turn, "Hel"), expected: KindTurnInterrupted},
		{name: "turn completed", event: NewTurnCompleted(turn, "Hello."), expected: KindTurnCompleted},
		{name: "assistant sentence", event: NewAssistantSentence(turn, "Hello."), expected: KindAssistantSentence},
		{name: "assistant word", event: NewAssistantWord(turn, speech.TimedWord{Text: "Hello"}), expected: KindAssistantWord},
		{name: "user utterance", event: NewUserUtterance("hi", "en-US", nil), expected: KindUserUtterance},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestTurnEventsCarryTurnID(t *testing.T) {
	turn := Turn{TurnID: uuid.New()}

	started := NewTurnStarted(turn, "hi")
	completed := NewTurnCompleted(turn, "Hello.")
	if started.TurnID != completed.TurnID {
		t.Fatalf("expected both events to carry turn %s, got %s and %s", turn.TurnID, started.TurnID, completed.TurnID)
	}
}
