// Package ssml renders speech markup for the synthesis backends.
package ssml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

type Dialect int

const (
	// DialectAzure is the full markup with mstts extensions.
	DialectAzure Dialect = iota
	// DialectPolly is the subset understood by Amazon Polly. Voices are
	// selected through the API, not in markup.
	DialectPolly
	// DialectPlain drops all markup and produces text only.
	DialectPlain
)

func (d Dialect) String() string {
	switch d {
	case DialectAzure:
		return "azure"
	case DialectPolly:
		return "polly"
	case DialectPlain:
		return "plain"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

const defaultLanguage = "en-US"

// Phrase is a fragment of a sentence with its own delivery.
type Phrase struct {
	Text        string
	Voice       string
	Style       string
	StyleDegree string
	Pitch       string
	Rate        string
	Emphasis    string
}

type Builder struct {
	Dialect  Dialect
	Language string
}

func NewBuilder(dialect Dialect) Builder {
	return Builder{Dialect: dialect, Language: defaultLanguage}
}

// Build renders text spoken by voice, optionally in the given style.
func (b Builder) Build(text, voice, style string) string {
	if b.Dialect == DialectPlain {
		return text
	}

	var buf bytes.Buffer
	b.openSpeak(&buf)
	if b.Dialect == DialectAzure {
		fmt.Fprintf(&buf, `<voice name="%s">`, attr(voice))
		if style != "" {
			fmt.Fprintf(&buf, `<mstts:express-as style="%s">`, attr(style))
		}
	}

	escape(&buf, text)

	if b.Dialect == DialectAzure {
		if style != "" {
			buf.WriteString("</mstts:express-as>")
		}
		buf.WriteString("</voice>")
	}
	buf.WriteString("</speak>")
	return buf.String()
}

// BuildPhrases renders phrases with per-phrase style and prosody. Pitch
// glides into the next phrase's pitch with a contour when the two differ.
func (b Builder) BuildPhrases(phrases []Phrase) string {
	if b.Dialect == DialectPlain {
		var text strings.Builder
		for _, phrase := range phrases {
			text.WriteString(phrase.Text)
		}
		return text.String()
	}

	var buf bytes.Buffer
	b.openSpeak(&buf)

	for n, phrase := range phrases {
		var pitch string
		switch {
		case phrase.Pitch == "":
		case b.Dialect == DialectAzure && n+1 < len(phrases) && phrases[n+1].Pitch != "" && phrases[n+1].Pitch != phrase.Pitch:
			pitch = fmt.Sprintf(` contour="(50%%,%s) (80%%,%s)"`, attr(phrase.Pitch), attr(phrases[n+1].Pitch))
		default:
			pitch = fmt.Sprintf(` pitch="%s"`, attr(phrase.Pitch))
		}

		expressed := b.Dialect == DialectAzure && phrase.Style != "" && phrase.StyleDegree != ""
		prosody := pitch != "" || phrase.Rate != ""

		if b.Dialect == DialectAzure {
			fmt.Fprintf(&buf, `<voice name="%s">`, attr(phrase.Voice))
			buf.WriteString(`<mstts:silence type="comma-exact" value="10ms"/>`)
			buf.WriteString(`<mstts:silence type="Tailing-exact" value="0ms"/>`)
			buf.WriteString(`<mstts:silence type="Sentenceboundary-exact" value="5ms"/>`)
			buf.WriteString(`<mstts:silence type="Leading-exact" value="0ms"/>`)
		}
		if expressed {
			fmt.Fprintf(&buf, `<mstts:express-as style="%s" styledegree="%s">`, attr(phrase.Style), attr(phrase.StyleDegree))
		}
		if prosody {
			buf.WriteString("<prosody" + pitch)
			if phrase.Rate != "" {
				fmt.Fprintf(&buf, ` rate="%s"`, attr(phrase.Rate))
			}
			buf.WriteString(">")
		}
		if phrase.Emphasis != "" {
			fmt.Fprintf(&buf, `<emphasis level="%s">`, attr(phrase.Emphasis))
		}

		escape(&buf, phrase.Text)

		if phrase.Emphasis != "" {
			buf.WriteString("</emphasis>")
		}
		if prosody {
			buf.WriteString("</prosody>")
		}
		if expressed {
			buf.WriteString("</mstts:express-as>")
		}
		if b.Dialect == DialectAzure {
			buf.WriteString("</voice>")
		}
	}

	buf.WriteString("</speak>")
	return buf.String()
}

func (b Builder) openSpeak(buf *bytes.Buffer) {
	language := b.Language
	if language == "" {
		language = defaultLanguage
	}

	switch b.Dialect {
	case DialectAzure:
		fmt.Fprintf(buf, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="%s">`, attr(language))
	default:
		fmt.Fprintf(buf, `<speak xml:lang="%s">`, attr(language))
	}
}

func escape(buf *bytes.Buffer, text string) {
	// EscapeText only fails when the writer does
	_ = xml.EscapeText(buf, []byte(text))
}

func attr(value string) string {
	var buf bytes.Buffer
	escape(&buf, value)
	return buf.String()
}
