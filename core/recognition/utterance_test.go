package recognition

import (
	"testing"
	"time"
)

func resultWithWords(offset time.Duration, words ...string) Result {
	best := NBest{Confidence: 0.9}
	display := ""
	for i, word := range words {
		start := offset + time.Duration(i)*600*time.Millisecond
		best.Words = append(best.Words, Word{
			Word:       word,
			Offset:     Ticks(start),
			Duration:   Ticks(300 * time.Millisecond),
			Confidence: 0.8,
		})
		if i > 0 {
			display += " "
		}
		display += word
	}
	best.Display = display + "."
	best.Lexical = display

	last := best.Words[len(best.Words)-1]
	return Result{
		ID:                "result",
		RecognitionStatus: "Success",
		Offset:            Ticks(offset),
		Duration:          last.Offset + last.Duration - Ticks(offset),
		DisplayText:       best.Display,
		NBest:             []NBest{best},
	}
}

func TestUtteranceWords(t *testing.T) {
	utterance := NewUtterance(resultWithWords(time.Second, "hello", "there"), "en-US")

	words := utterance.Words()
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
	if words[1].Offset != 1600*time.Millisecond {
		t.Fatalf("expected second word at 1.6s, got %s", words[1].Offset)
	}
	if words[0].Confidence == nil || *words[0].Confidence != 0.8 {
		t.Fatalf("expected word confidence 0.8, got %v", words[0].Confidence)
	}
	if utterance.Offset() != time.Second {
		t.Fatalf("expected offset 1s, got %s", utterance.Offset())
	}
	if utterance.End() != 1900*time.Millisecond {
		t.Fatalf("expected end 1.9s, got %s", utterance.End())
	}
	if got := utterance.Display(); got != "hello there." {
		t.Fatalf("expected display %q, got %q", "hello there.", got)
	}
}

func TestUtteranceFromCutoffKeepsWordsEndingBeforeCutoff(t *testing.T) {
	utterance := NewUtterance(resultWithWords(0, "one", "two", "three", "four"), "en-US")

	truncated := utterance.FromCutoff(0, 1500*time.Millisecond)
	if truncated == nil {
		t.Fatalf("expected a truncated utterance, got nil")
	}
	if got := len(truncated.Words()); got != 3 {
		t.Fatalf("expected 3 words, got %d", got)
	}
	if got := truncated.Display(); got != "one two three" {
		t.Fatalf("expected display %q, got %q", "one two three", got)
	}
	if got := truncated.End(); got != 1500*time.Millisecond {
		t.Fatalf("expected end 1.5s, got %s", got)
	}
	if truncated.Language() != "en-US" {
		t.Fatalf("expected language to carry over, got %q", truncated.Language())
	}
}

func TestUtteranceFromCutoffDropsWordSpanningCutoff(t *testing.T) {
	utterance := NewUtterance(resultWithWords(0, "one", "two", "three", "four"), "en-US")

	// "three" starts at 1.2s but only ends at 1.5s
	truncated := utterance.FromCutoff(0, 1400*time.Millisecond)
	if truncated == nil {
		t.Fatalf("expected a truncated utterance, got nil")
	}
	if got := truncated.Display(); got != "one two" {
		t.Fatalf("expected display %q, got %q", "one two", got)
	}
	if got := truncated.End(); got > 1400*time.Millisecond {
		t.Fatalf("expected end at or before the cutoff, got %s", got)
	}
}

func TestUtteranceFromCutoffKeepsOnlyPrefix(t *testing.T) {
	result := resultWithWords(0, "one", "two", "three")
	// A long middle word ends past the cutoff while the next one fits
	result.NBest[0].Words[1].Duration = Ticks(2 * time.Second)
	utterance := NewUtterance(result, "en-US")

	truncated := utterance.FromCutoff(0, 1500*time.Millisecond)
	if truncated == nil {
		t.Fatalf("expected a truncated utterance, got nil")
	}
	if got := truncated.Display(); got != "one" {
		t.Fatalf("expected only the first word, got %q", got)
	}
}

func TestUtteranceFromCutoffWithNothingLeft(t *testing.T) {
	utterance := NewUtterance(resultWithWords(2*time.Second, "late"), "en-US")

	if truncated := utterance.FromCutoff(0, time.Second); truncated != nil {
		t.Fatalf("expected nil, got %q", truncated.Display())
	}
}

func TestUtteranceSentences(t *testing.T) {
	result := resultWithWords(0, "hi")
	result.NBest[0].Display = "Hi there. How are you?"
	utterance := NewUtterance(result, "en-US")

	sentences := utterance.Sentences()
	if len(sentences) != 2 || sentences[1] != "How are you?" {
		t.Fatalf("expected two sentences, got %q", sentences)
	}
}
