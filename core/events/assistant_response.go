package events

// KindAssistantSentence identifies a complete response sentence.
const KindAssistantSentence Kind = "assistant_response.sentence"

type AssistantSentence struct {
	Base
	Turn
	Sentence string
}

func NewAssistantSentence(turn Turn, sentence string) AssistantSentence {
	return AssistantSentence{Base: NewBase(KindAssistantSentence), Turn: turn, Sentence: sentence}
}
