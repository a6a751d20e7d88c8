// Package prosody asks a model how the assistant should sound: the tone of
// the next response or the delivery of every phrase in it.
package prosody

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed toneInstr.tmpl
var toneSelectorSystemPrompt string

const tonePrompt = "Choose the most suitable tone/emotion for the assistant's upcoming response."

type toneSelection struct {
	Index int `json:"index" jsonschema:"title=Index,description=The index of the chosen tone,minimum=1"`
}

// LLM is either an llms.StructuredLLM or an llms.GeneralLLM. Structured
// prompting is preferred when both are implemented.
type LLM any

// ToneSelector picks one of a voice's styles for the next response.
type ToneSelector struct {
	llm          LLM
	styles       []string
	defaultStyle string
}

func NewToneSelector(llm LLM, styles []string, defaultStyle string) *ToneSelector {
	if len(styles) == 0 {
		styles = DefaultStyles
	}
	return &ToneSelector{llm: llm, styles: styles, defaultStyle: defaultStyle}
}

func (s *ToneSelector) systemPrompt() string {
	options := make([]string, 0, len(s.styles))
	for n, style := range s.styles {
		options = append(options, fmt.Sprintf("%d %s", n+1, style))
	}
	defaultStyle := s.defaultStyle
	if defaultStyle == "" {
		defaultStyle = "neutral"
	}
	return fmt.Sprintf(toneSelectorSystemPrompt, defaultStyle, strings.Join(options, "\n"))
}

// Select returns the style for the assistant's next response given the
// conversation so far. On any failure the default style is returned with the
// error; a malformed answer is reported as llms.ErrFormatMismatch.
func (s *ToneSelector) Select(ctx context.Context, history []llms.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "select tone")
	defer span.End()

	index, err := s.selectIndex(ctx, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return s.defaultStyle, err
	}

	style := s.styles[index-1]
	span.SetAttributes(attribute.String("tone.style", style))
	return style, nil
}

func (s *ToneSelector) selectIndex(ctx context.Context, history []llms.Message) (int, error) {
	messages := append(append([]llms.Message{}, history...), llms.NewUserMessage(tonePrompt))
	opts := []llms.PromptOption{
		llms.WithSystemPrompt(s.systemPrompt()),
		llms.WithTemperature(0),
		llms.WithTopP(1),
	}

	switch llm := s.llm.(type) {
	case llms.StructuredLLM:
		resp := toneSelection{}
		if err := llm.PromptWithStructure(ctx, messages, &resp, opts...); err != nil {
			return 0, err
		}
		if resp.Index < 1 || resp.Index > len(s.styles) {
			return 0, &llms.FormatMismatchError{
				Response: strconv.Itoa(resp.Index),
				Reason:   fmt.Errorf("tone index out of range 1-%d", len(s.styles)),
			}
		}
		return resp.Index, nil

	case llms.GeneralLLM:
		response, err := llm.Prompt(ctx, messages, append(opts, llms.WithMaxTokens(4))...)
		if err != nil {
			return 0, fmt.Errorf("failed to prompt tone selector: %w", err)
		}
		index, err := strconv.Atoi(strings.Trim(strings.TrimSpace(response), ".\"'"))
		if err != nil {
			return 0, &llms.FormatMismatchError{Response: response, Reason: err}
		}
		if index < 1 || index > len(s.styles) {
			return 0, &llms.FormatMismatchError{
				Response: response,
				Reason:   fmt.Errorf("tone index out of range 1-%d", len(s.styles)),
			}
		}
		return index, nil
	}

	return 0, fmt.Errorf("unknown llm type %T", s.llm)
}
