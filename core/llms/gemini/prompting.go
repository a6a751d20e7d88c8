package gemini

import (
	"context"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

func (c *Client) PromptWithStream(_ context.Context, history []llms.Message, opts ...llms.PromptOption) llms.Stream {
	return &Stream{client: c, history: history, options: llms.NewPromptOptions(opts...)}
}

type Stream struct {
	client  *Client
	history []llms.Message
	options llms.PromptOptions
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))

		var usage *genai.GenerateContentResponseUsageMetadata
		responses := s.client.client.Models.GenerateContentStream(ctx, s.client.model, toContents(s.history), toConfig(s.history, s.options))
		for resp, err := range responses {
			if err != nil {
				err = normalizeError(err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(nil, err)
				return
			}

			if resp.UsageMetadata != nil {
				usage = resp.UsageMetadata
			}
			if text := resp.Text(); text != "" {
				var finishReason *string
				if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
					reason := string(resp.Candidates[0].FinishReason)
					finishReason = &reason
				}
				if !yield(llms.ContentChunk{Text: text, Finish: finishReason}, nil) {
					return
				}
			}
		}

		if usage != nil {
			span.SetAttributes(attribute.Int("usage.input", int(usage.PromptTokenCount)))
			span.SetAttributes(attribute.Int("usage.output", int(usage.CandidatesTokenCount)))
			span.SetAttributes(attribute.Int("usage.total", int(usage.TotalTokenCount)))
			yield(StreamUsageChunk{usage: llms.Usage{
				InputTokens:     int(usage.PromptTokenCount),
				OutputTokens:    int(usage.CandidatesTokenCount),
				ReasoningTokens: int(usage.ThoughtsTokenCount),
				TotalTokens:     int(usage.TotalTokenCount),
			}}, nil)
		}
	}
}

func (c *Client) Prompt(ctx context.Context, history []llms.Message, opts ...llms.PromptOption) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, toContents(history), toConfig(history, llms.NewPromptOptions(opts...)))
	if err != nil {
		err = normalizeError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return resp.Text(), nil
}

// PromptWithStructure constrains the response to the JSON schema of output.
func (c *Client) PromptWithStructure(ctx context.Context, history []llms.Message, output any, opts ...llms.PromptOption) error {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	schema, err := llms.NewResponseSchema(output)
	if err != nil {
		return fail(err)
	}

	config := toConfig(history, llms.NewPromptOptions(opts...))
	config.ResponseMIMEType = "application/json"
	config.ResponseJsonSchema = schema.Schema

	resp, err := c.client.Models.GenerateContent(ctx, c.model, toContents(history), config)
	if err != nil {
		return fail(normalizeError(err))
	}

	if err := schema.Decode(resp.Text(), output); err != nil {
		return fail(err)
	}
	return nil
}

type StreamUsageChunk struct {
	usage llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return nil
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
