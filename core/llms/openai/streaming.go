package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	eventPrefix = "event:"
	chunkPrefix = "data:"
)

func (c *Client) PromptWithStream(_ context.Context, history []llms.Message, opts ...llms.PromptOption) llms.Stream {
	return &Stream{
		client:  c,
		history: history,
		options: llms.NewPromptOptions(opts...),
	}
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

		reqBody := newRequestBody(s.client.model, s.history, s.options)
		reqBody.Stream = true

		resp, err := s.client.send(ctx, span, reqBody)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		usage := llms.Usage{}
		startTime := time.Now()
		lapTime := startTime

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, eventPrefix) {
				continue
			}
			event := strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))

			if !scanner.Scan() {
				break
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			switch streamingEventType(event) {
			case streamingEventResponseCreated, streamingEventResponseQueued:
				lapTime = time.Now()

			case streamingEventResponseInProgress:
				usage.QueueTime = time.Since(lapTime).Seconds()
				lapTime = time.Now()

			case streamingEventResponseOutputTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				if !yield(llms.ContentChunk{Text: responseBody.Delta}, nil) {
					return
				}

			case streamingEventResponseReasoningTextDelta,
				streamingEventResponseReasoningSummaryTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				if !yield(StreamReasoningChunk{reasoning: responseBody.Delta}, nil) {
					return
				}

			case streamingEventResponseFailed:
				err := fmt.Errorf("response failed: %s", chunk)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(nil, err)
				return

			case streamingEventResponseCompleted:
				usage.TotalTime = time.Since(startTime).Seconds()

				var responseBody streamingBodyResponseCompleted
				if err := json.Unmarshal([]byte(chunk), &responseBody); err == nil && responseBody.Response.Usage != nil {
					u := responseBody.Response.Usage
					usage.InputTokens = u.InputTokens
					usage.OutputTokens = u.OutputTokens
					usage.TotalTokens = u.TotalTokens
					if u.OutputTokensDetails != nil {
						usage.ReasoningTokens = u.OutputTokensDetails.ReasoningTokens
					}
					span.SetAttributes(attribute.Int("usage.input", u.InputTokens))
					span.SetAttributes(attribute.Int("usage.output", u.OutputTokens))
					span.SetAttributes(attribute.Int("usage.total", u.TotalTokens))
				}

				if !yield(StreamUsageChunk{usage: usage}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type streamingEventType string

const (
	streamingEventResponseOutputTextDelta           streamingEventType = "response.output_text.delta"
	streamingEventResponseReasoningTextDelta        streamingEventType = "response.reasoning_text.delta"
	streamingEventResponseReasoningSummaryTextDelta streamingEventType = "response.reasoning_summary_text.delta"
	streamingEventResponseCreated                   streamingEventType = "response.created"
	streamingEventResponseQueued                    streamingEventType = "response.queued"
	streamingEventResponseInProgress                streamingEventType = "response.in_progress"
	streamingEventResponseFailed                    streamingEventType = "response.failed"
	streamingEventResponseCompleted                 streamingEventType = "response.completed"
)

type streamingBodyResponseTextDelta struct {
	Delta string `json:"delta"`
}

// streamingBodyResponseCompleted is emitted when the model response is complete
type streamingBodyResponseCompleted struct {
	Response struct {
		Usage *responseBodyUsage `json:"usage"`
	} `json:"response"`
}

type StreamReasoningChunk struct {
	finishReason *string
	reasoning    string
}

func (s StreamReasoningChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamReasoningChunk) Reasoning() string {
	return s.reasoning
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
