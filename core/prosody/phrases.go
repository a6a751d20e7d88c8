package prosody

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/ssml"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed phrasesInstr.tmpl
var phraseSelectorSystemPrompt string

//go:embed phrasesGeneralInstr.tmpl
var phraseSelectorGeneralSuffix string

type phraseSelection struct {
	Phrases []phraseDelivery `json:"phrases" jsonschema:"title=Phrases,description=Delivery of every phrase in the given order"`
}

type phraseDelivery struct {
	Style       int `json:"style" jsonschema:"minimum=1"`
	StyleDegree int `json:"styledegree" jsonschema:"minimum=1,maximum=5"`
	Pitch       int `json:"pitch" jsonschema:"minimum=1,maximum=5"`
	Rate        int `json:"rate" jsonschema:"minimum=1,maximum=5"`
	Emphasis    int `json:"emphasis" jsonschema:"minimum=1,maximum=4"`
}

// PhraseSelector splits sentences into phrases and asks a model how each of
// them should be delivered by voice.
type PhraseSelector struct {
	llm    LLM
	voice  string
	styles []string
}

func NewPhraseSelector(llm LLM, voice string, styles []string) *PhraseSelector {
	if len(styles) == 0 {
		styles = DefaultStyles
	}
	return &PhraseSelector{llm: llm, voice: voice, styles: styles}
}

func (s *PhraseSelector) systemPrompt() string {
	styles := make([]string, 0, len(s.styles))
	for n, style := range s.styles {
		styles = append(styles, fmt.Sprintf("%02d %s", n+1, style))
	}
	return fmt.Sprintf(phraseSelectorSystemPrompt,
		strings.Join(styles, "\n"),
		labels(StyleDegrees), labels(Pitches), labels(Rates), labels(Emphases),
	)
}

func labels(options []Option) string {
	lines := make([]string, 0, len(options))
	for n, option := range options {
		lines = append(lines, fmt.Sprintf("%d %s", n+1, option.Label))
	}
	return strings.Join(lines, "\n")
}

// Select returns one phrase per delimited piece of sentences. When the model
// fails or answers malformed the phrases are still returned, in the voice's
// plain delivery, together with the error.
func (s *PhraseSelector) Select(ctx context.Context, sentences []string, history []llms.Message) ([]ssml.Phrase, error) {
	ctx, span := tracer.Start(ctx, "select phrase prosody")
	defer span.End()

	texts := SplitPhrases(sentences)
	span.SetAttributes(attribute.Int("prosody.phrases", len(texts)))
	if len(texts) == 0 {
		return nil, nil
	}

	deliveries, err := s.selectDeliveries(ctx, texts, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	phrases := make([]ssml.Phrase, 0, len(texts))
	for n, text := range texts {
		phrase := ssml.Phrase{Text: text, Voice: s.voice}
		if n < len(deliveries) {
			delivery := deliveries[n]
			phrase.Style = pick(s.styles, delivery.Style)
			phrase.StyleDegree = pick(StyleDegrees, delivery.StyleDegree).Value
			phrase.Pitch = pick(Pitches, delivery.Pitch).Value
			phrase.Rate = pick(Rates, delivery.Rate).Value
			phrase.Emphasis = pick(Emphases, delivery.Emphasis).Value
		}
		phrases = append(phrases, phrase)
	}
	return phrases, err
}

func (s *PhraseSelector) selectDeliveries(ctx context.Context, texts []string, history []llms.Message) ([]phraseDelivery, error) {
	numbered := make([]string, 0, len(texts))
	for n, text := range texts {
		numbered = append(numbered, fmt.Sprintf("%d. %s", n+1, strings.TrimSpace(text)))
	}
	prompt := fmt.Sprintf("Choose the delivery of these %d phrases:\n%s", len(texts), strings.Join(numbered, "\n"))
	messages := append(append([]llms.Message{}, history...), llms.NewUserMessage(prompt))
	opts := []llms.PromptOption{llms.WithTemperature(0), llms.WithTopP(1)}

	switch llm := s.llm.(type) {
	case llms.StructuredLLM:
		resp := phraseSelection{}
		if err := llm.PromptWithStructure(ctx, messages, &resp,
			append(opts, llms.WithSystemPrompt(s.systemPrompt()))...); err != nil {
			return nil, err
		}
		if len(resp.Phrases) != len(texts) {
			return resp.Phrases, &llms.FormatMismatchError{
				Reason: fmt.Errorf("expected %d phrases, got %d", len(texts), len(resp.Phrases)),
			}
		}
		return resp.Phrases, nil

	case llms.GeneralLLM:
		response, err := llm.Prompt(ctx, messages,
			append(opts, llms.WithSystemPrompt(s.systemPrompt()+"\n"+phraseSelectorGeneralSuffix))...)
		if err != nil {
			return nil, fmt.Errorf("failed to prompt phrase selector: %w", err)
		}
		return parseDeliveries(response, len(texts))
	}

	return nil, fmt.Errorf("unknown llm type %T", s.llm)
}

// parseDeliveries reads one six digit line per phrase. Lines parsed before
// a malformed one are kept.
func parseDeliveries(response string, expected int) ([]phraseDelivery, error) {
	deliveries := []phraseDelivery{}
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.Join(strings.Fields(line), "")
		if line == "" {
			continue
		}
		if len(line) != 6 {
			return deliveries, &llms.FormatMismatchError{
				Response: response,
				Reason:   fmt.Errorf("expected six digits, got %q", line),
			}
		}

		digits := make([]int, 0, 5)
		for _, field := range []string{line[:2], line[2:3], line[3:4], line[4:5], line[5:6]} {
			digit, err := strconv.Atoi(field)
			if err != nil {
				return deliveries, &llms.FormatMismatchError{Response: response, Reason: err}
			}
			digits = append(digits, digit)
		}
		deliveries = append(deliveries, phraseDelivery{
			Style:       digits[0],
			StyleDegree: digits[1],
			Pitch:       digits[2],
			Rate:        digits[3],
			Emphasis:    digits[4],
		})
	}

	if len(deliveries) != expected {
		return deliveries, &llms.FormatMismatchError{
			Response: response,
			Reason:   fmt.Errorf("expected %d phrases, got %d", expected, len(deliveries)),
		}
	}
	return deliveries, nil
}
