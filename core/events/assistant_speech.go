package events

import "github.com/koscakluka/ema-voice/core/speech"

// KindAssistantWord identifies a word reached in playback.
const KindAssistantWord Kind = "assistant_speech.word"

// AssistantWord carries a synthesized word once its audio was reached. The
// text already holds the spacing needed to append it to what was said.
type AssistantWord struct {
	Base
	Turn
	Word speech.TimedWord
}

func NewAssistantWord(turn Turn, word speech.TimedWord) AssistantWord {
	return AssistantWord{Base: NewBase(KindAssistantWord), Turn: turn, Word: word}
}
