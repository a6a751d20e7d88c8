package speech

import (
	"testing"
	"time"
)

func TestCategoryOf(t *testing.T) {
	testCases := []struct {
		text     string
		expected Category
	}{
		{text: "hello", expected: CategoryWord},
		{text: "42", expected: CategoryWord},
		{text: "don't", expected: CategoryWord},
		{text: ",", expected: CategoryPunctuation},
		{text: "?!", expected: CategoryPunctuation},
	}

	for _, testCase := range testCases {
		if got := CategoryOf(testCase.text); got != testCase.expected {
			t.Fatalf("expected %q to be %q, got %q", testCase.text, testCase.expected, got)
		}
	}
}

func TestTimedWordEnd(t *testing.T) {
	word := TimedWord{Offset: 600 * time.Millisecond, Duration: 250 * time.Millisecond}
	if got := word.End(); got != 850*time.Millisecond {
		t.Fatalf("expected end 850ms, got %s", got)
	}
}
