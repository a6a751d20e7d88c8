package prosody

import (
	"regexp"
	"strings"
)

var phraseDelimiter = regexp.MustCompile("(\r\n|[,.?!:;\"`|\n\t])")

// SplitPhrases breaks sentences into phrases on punctuation. Delimiters stay
// attached to the phrase they end and empty phrases are dropped.
func SplitPhrases(sentences []string) []string {
	phrases := []string{}
	for _, sentence := range sentences {
		last := 0
		var current []string
		for _, loc := range phraseDelimiter.FindAllStringIndex(sentence, -1) {
			piece := sentence[last:loc[0]]
			delimiter := sentence[loc[0]:loc[1]]
			last = loc[1]

			if strings.TrimSpace(piece) != "" || len(current) == 0 {
				current = append(current, piece+delimiter)
			} else {
				current[len(current)-1] += piece + delimiter
			}
		}
		if rest := sentence[last:]; strings.TrimSpace(rest) != "" {
			current = append(current, rest)
		} else if len(current) > 0 {
			current[len(current)-1] += rest
		}

		for _, phrase := range current {
			if strings.TrimSpace(phrase) != "" {
				phrases = append(phrases, phrase)
			}
		}
	}
	return phrases
}
