// Package sentences splits running text into sentences while keeping every
// character, so that joining the segments reproduces the input exactly.
package sentences

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "inc": {}, "ltd": {},
	"co": {}, "mt": {}, "approx": {}, "dept": {}, "est": {}, "fig": {},
	"no": {}, "vol": {}, "a.m": {}, "p.m": {}, "u.s": {}, "u.k": {},
}

// Segment splits text into sentences. Trailing whitespace stays attached to
// the sentence it follows. The last segment may be an unterminated sentence.
func Segment(text string) []string {
	segments := []string{}
	start := 0
	lineStart := 0

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		if r == '\n' {
			end := skipSpace(text, i)
			if strings.Count(text[i:end], "\n") > 0 && strings.TrimSpace(text[start:i]) != "" {
				segments = append(segments, text[start:end])
				start = end
			}
			i = end
			lineStart = end
			continue
		}

		if !isTerminal(r) {
			i += size
			continue
		}

		end := i + size
		for end < len(text) {
			next, nextSize := utf8.DecodeRuneInString(text[end:])
			if !isTerminal(next) && !isClosing(next) {
				break
			}
			end += nextSize
		}

		if end >= len(text) {
			break
		}

		next, _ := utf8.DecodeRuneInString(text[end:])
		if !unicode.IsSpace(next) {
			i = end
			continue
		}

		if r == '.' && !isBoundary(text, lineStart, i, skipSpace(text, end)) {
			i = end
			continue
		}

		boundary := skipSpace(text, end)
		if strings.Contains(text[end:boundary], "\n") {
			lineStart = boundary
		}
		segments = append(segments, text[start:boundary])
		start = boundary
		i = boundary
	}

	if start < len(text) {
		segments = append(segments, text[start:])
	}

	return segments
}

// Trimmed returns the segments of text with surrounding whitespace removed
// and empty segments dropped.
func Trimmed(text string) []string {
	trimmed := []string{}
	for _, segment := range Segment(text) {
		if segment = strings.TrimSpace(segment); segment != "" {
			trimmed = append(trimmed, segment)
		}
	}
	return trimmed
}

func isBoundary(text string, lineStart, period, nextWord int) bool {
	wordStart := period
	for wordStart > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:wordStart])
		if unicode.IsSpace(r) || r == '(' || r == '"' {
			break
		}
		wordStart -= size
	}
	word := strings.ToLower(text[wordStart:period])

	if _, ok := abbreviations[word]; ok {
		return false
	}

	if utf8.RuneCountInString(word) == 1 {
		if r, _ := utf8.DecodeRuneInString(word); unicode.IsLetter(r) {
			return false
		}
	}

	if wordStart == lineStart && word != "" && strings.Trim(word, "0123456789") == "" {
		return false
	}

	if nextWord < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[nextWord:]); unicode.IsLower(r) {
			return false
		}
	}

	return true
}

func skipSpace(text string, from int) int {
	for from < len(text) {
		r, size := utf8.DecodeRuneInString(text[from:])
		if !unicode.IsSpace(r) {
			break
		}
		from += size
	}
	return from
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']', '}', '»':
		return true
	}
	return false
}
