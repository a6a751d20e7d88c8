package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prompt sends a non-streamed completion request and returns the response
// text.
func (c *Client) Prompt(ctx context.Context, history []llms.Message, opts ...llms.PromptOption) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	content, err := c.complete(ctx, history, llms.NewPromptOptions(opts...), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return content, nil
}

func (c *Client) complete(ctx context.Context, history []llms.Message, options llms.PromptOptions, format *ChatResponseFormat) (string, error) {
	span := trace.SpanFromContext(ctx)

	messages, err := toMessages(options.Instructions, history)
	if err != nil {
		return "", fmt.Errorf("error converting messages: %w", err)
	}
	reqBody := newRequestBody(c.model, messages, options)
	reqBody.ResponseFormat = format

	resp, err := c.send(ctx, span, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var responseBody completionResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		return "", fmt.Errorf("error unmarshalling response: %w", err)
	}
	if len(responseBody.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}
	if responseBody.Usage != nil {
		span.SetAttributes(attribute.Int("usage.input", responseBody.Usage.PromptTokens))
		span.SetAttributes(attribute.Int("usage.output", responseBody.Usage.CompletionTokens))
		span.SetAttributes(attribute.Int("usage.total", responseBody.Usage.TotalTokens))
	}

	return responseBody.Choices[0].Message.Content, nil
}

type completionResponseBody struct {
	Choices []struct {
		Message struct {
			Role      string `json:"role,omitempty"`
			Content   string `json:"content,omitempty"`
			Reasoning string `json:"reasoning,omitempty"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}
