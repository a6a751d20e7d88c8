package recognition

import (
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-voice/core/sentences"
	"github.com/koscakluka/ema-voice/core/speech"
)

// Utterance wraps a Result and derives its timed words and sentences on
// first use.
type Utterance struct {
	result   Result
	language string

	wordsOnce sync.Once
	words     []speech.TimedWord

	sentencesOnce sync.Once
	sentences     []string
}

func NewUtterance(result Result, language string) *Utterance {
	return &Utterance{result: result, language: language}
}

func (u *Utterance) Result() Result {
	return u.result
}

func (u *Utterance) Language() string {
	return u.language
}

func (u *Utterance) Offset() time.Duration {
	return fromTicks(u.result.Offset)
}

func (u *Utterance) Duration() time.Duration {
	return fromTicks(u.result.Duration)
}

// End is the offset at which the utterance has been fully spoken.
func (u *Utterance) End() time.Duration {
	return u.Offset() + u.Duration()
}

// Display is the punctuated, capitalized form of the best hypothesis.
func (u *Utterance) Display() string {
	if best, ok := u.result.best(); ok && best.Display != "" {
		return best.Display
	}
	return u.result.DisplayText
}

func (u *Utterance) Confidence() float64 {
	best, _ := u.result.best()
	return best.Confidence
}

func (u *Utterance) Words() []speech.TimedWord {
	u.wordsOnce.Do(func() {
		best, ok := u.result.best()
		if !ok {
			return
		}
		u.words = make([]speech.TimedWord, 0, len(best.Words))
		for _, word := range best.Words {
			confidence := word.Confidence
			u.words = append(u.words, speech.TimedWord{
				Text:       word.Word,
				Category:   speech.CategoryWord,
				Offset:     fromTicks(word.Offset),
				Duration:   fromTicks(word.Duration),
				Source:     speech.SourceRecognition,
				Confidence: &confidence,
			})
		}
	})
	return u.words
}

func (u *Utterance) Sentences() []string {
	u.sentencesOnce.Do(func() {
		u.sentences = sentences.Trimmed(u.Display())
	})
	return u.sentences
}

// FromCutoff returns a copy of the utterance holding the longest run of whole
// words that start at or after lower and end at or before upper. The display
// text is cut after the same number of words. It returns nil when no word is
// left.
func (u *Utterance) FromCutoff(lower, upper time.Duration) *Utterance {
	best, ok := u.result.best()
	if !ok {
		return nil
	}

	var kept []Word
	for _, word := range best.Words {
		offset := fromTicks(word.Offset)
		if offset < lower {
			continue
		}
		if offset+fromTicks(word.Duration) > upper {
			break
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		return nil
	}

	last := kept[len(kept)-1]
	display := firstWords(u.Display(), len(kept))

	result := u.result
	result.Duration = max(last.Offset+last.Duration-result.Offset, 0)
	result.DisplayText = display
	result.NBest = []NBest{{
		Confidence: best.Confidence,
		Lexical:    firstWords(best.Lexical, len(kept)),
		ITN:        firstWords(best.ITN, len(kept)),
		MaskedITN:  firstWords(best.MaskedITN, len(kept)),
		Display:    display,
		Words:      kept,
	}}

	return NewUtterance(result, u.language)
}

func firstWords(text string, count int) string {
	fields := strings.Fields(text)
	if len(fields) <= count {
		return strings.TrimSpace(text)
	}
	return strings.Join(fields[:count], " ")
}
