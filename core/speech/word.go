// Package speech holds the value types shared by synthesis and recognition.
package speech

import (
	"fmt"
	"time"
	"unicode"
)

type Category string

const (
	CategoryWord        Category = "word"
	CategoryPunctuation Category = "punctuation"
)

type Source string

const (
	SourceSynthesis   Source = "synthesis"
	SourceRecognition Source = "recognition"
)

// TimedWord is a single synthesized or recognized word. Offset is measured
// from the start of the session that produced it.
type TimedWord struct {
	Text       string
	Category   Category
	Offset     time.Duration
	Duration   time.Duration
	Source     Source
	Confidence *float64
}

// End returns the offset at which the word has been fully spoken.
func (w TimedWord) End() time.Duration {
	return w.Offset + w.Duration
}

func (w TimedWord) String() string {
	return fmt.Sprintf("<word: %q | offset: %s | duration: %s>", w.Text, w.Offset, w.Duration)
}

// CategoryOf classifies text as punctuation when it has no letters or digits.
func CategoryOf(text string) Category {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return CategoryWord
		}
	}
	if text == "" {
		return CategoryWord
	}
	return CategoryPunctuation
}
