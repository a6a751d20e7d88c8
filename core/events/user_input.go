package events

import "github.com/koscakluka/ema-voice/core/speech"

// KindUserUtterance identifies a finalized recognized utterance.
const KindUserUtterance Kind = "user_input.utterance"

type UserUtterance struct {
	Base
	Text     string
	Language string
	Words    []speech.TimedWord
}

func NewUserUtterance(text, language string, words []speech.TimedWord) UserUtterance {
	return UserUtterance{Base: NewBase(KindUserUtterance), Text: text, Language: language, Words: words}
}
