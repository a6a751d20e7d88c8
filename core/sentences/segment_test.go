package sentences

import (
	"slices"
	"strings"
	"testing"
)

func TestSegmentKeepsAllCharacters(t *testing.T) {
	inputs := []string{
		"Hello, world. Next",
		"Wow! Really? Yes.",
		"Dr. Smith arrived at 5 p.m. yesterday. He sat down.",
		"A list:\n1. first\n2. second",
		"  leading space. trailing space.  ",
		"",
	}

	for _, input := range inputs {
		if got := strings.Join(Segment(input), ""); got != input {
			t.Fatalf("expected segments to rebuild %q, got %q", input, got)
		}
	}
}

func TestSegmentSplitsOnTerminalPunctuation(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "trailing fragment", input: "Hello, world. Next", expected: []string{"Hello, world. ", "Next"}},
		{name: "unterminated end", input: "Next sentence.", expected: []string{"Next sentence."}},
		{name: "mixed punctuation", input: "Wow! Really? Yes.", expected: []string{"Wow! ", "Really? ", "Yes."}},
		{name: "abbreviation", input: "Dr. Smith arrived. He sat.", expected: []string{"Dr. Smith arrived. ", "He sat."}},
		{name: "lowercase continuation", input: "See e.g. the docs. Then go.", expected: []string{"See e.g. the docs. ", "Then go."}},
		{name: "decimal number", input: "Pi is 3.14 roughly. Yes.", expected: []string{"Pi is 3.14 roughly. ", "Yes."}},
		{name: "closing quote", input: "He said \"hi.\" Then left.", expected: []string{"He said \"hi.\" ", "Then left."}},
		{name: "newline", input: "First line\nSecond line", expected: []string{"First line\n", "Second line"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := Segment(testCase.input); !slices.Equal(got, testCase.expected) {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestTrimmedDropsWhitespace(t *testing.T) {
	got := Trimmed("  One.  Two!  ")
	expected := []string{"One.", "Two!"}
	if !slices.Equal(got, expected) {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}
