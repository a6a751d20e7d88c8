package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

// PromptWithStream prepares a streamed completion. No request is sent until
// the stream's chunks are ranged over.
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
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		messages, err := toMessages(s.options.Instructions, s.history)
		if err != nil {
			fail(fmt.Errorf("error converting messages: %w", err))
			return
		}
		reqBody := newRequestBody(s.client.model, messages, s.options)
		reqBody.Stream = true

		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.send(ctx, span, reqBody)
		if err != nil {
			fail(err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}

			var finishReason *string
			if len(responseBody.Choices) > 0 {
				choice := responseBody.Choices[0]
				finishReason = choice.FinishReason

				if choice.Delta.Content != "" {
					if !yield(llms.ContentChunk{Finish: finishReason, Text: choice.Delta.Content}, nil) {
						return
					}
				}

				if choice.Delta.Reasoning != "" {
					if !yield(StreamReasoningChunk{finishReason: finishReason, reasoning: choice.Delta.Reasoning}, nil) {
						return
					}
				}
			}

			u := responseBody.Usage
			if u == nil && responseBody.XGroq != nil {
				u = responseBody.XGroq.Usage
			}
			if u != nil {
				span.SetAttributes(attribute.Int("usage.input", u.PromptTokens))
				span.SetAttributes(attribute.Int("usage.output", u.CompletionTokens))
				span.SetAttributes(attribute.Int("usage.total", u.TotalTokens))
				span.SetAttributes(attribute.Float64("usage.queue_time", u.QueueTime))
				span.SetAttributes(attribute.Float64("usage.total_time", u.TotalTime))

				if !yield(StreamUsageChunk{finishReason: finishReason, usage: u.toLLMUsage()}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

// send posts body to the completions endpoint and returns the response when
// its status is OK. Any other status is turned into an *llms.APIError.
func (c *Client) send(ctx context.Context, span trace.Span, body requestBody) (*http.Response, error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(attribute.String("request.url", req.URL.String()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &llms.APIError{Provider: "groq", StatusCode: resp.StatusCode, Status: resp.Status}
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			apiErr.Body = strings.TrimSpace(string(errorBody))
			span.SetAttributes(attribute.String("response.error", apiErr.Body))
		}
		return nil, apiErr
	}

	return resp, nil
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role      string `json:"role,omitempty"`
			Content   string `json:"content,omitempty"`
			Reasoning string `json:"reasoning,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
	XGroq *struct {
		Usage *usage `json:"usage"`
	} `json:"x_groq,omitempty"`
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
