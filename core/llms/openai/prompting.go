package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *Client) Prompt(ctx context.Context, history []llms.Message, opts ...llms.PromptOption) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	content, err := c.complete(ctx, newRequestBody(c.model, history, llms.NewPromptOptions(opts...)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return content, nil
}

// PromptWithStructure requests a strict json_schema text format and decodes
// the answer into output.
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
	rawSchema, err := schema.Schema.MarshalJSON()
	if err != nil {
		return fail(fmt.Errorf("error marshalling schema: %w", err))
	}

	reqBody := newRequestBody(c.model, history, llms.NewPromptOptions(opts...))
	reqBody.Text = &requestBodyText{Format: requestBodyTextFormat{
		Type:   "json_schema",
		Name:   schema.Name,
		Schema: rawSchema,
		Strict: true,
	}}

	content, err := c.complete(ctx, reqBody)
	if err != nil {
		return fail(err)
	}
	if err := schema.Decode(content, output); err != nil {
		return fail(err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, reqBody requestBody) (string, error) {
	span := trace.SpanFromContext(ctx)

	resp, err := c.send(ctx, span, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var responseBody generalResponseBody
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}

	var content strings.Builder
	for _, output := range responseBody.Output {
		if output.Type != "message" {
			continue
		}
		for _, part := range output.Content {
			switch part.Type {
			case "output_text":
				content.WriteString(part.Text)
			case "refusal":
				content.WriteString(part.Refusal)
			}
		}
	}

	if responseBody.Usage != nil {
		span.SetAttributes(attribute.Int("usage.input", responseBody.Usage.InputTokens))
		span.SetAttributes(attribute.Int("usage.output", responseBody.Usage.OutputTokens))
	}

	return content.String(), nil
}

type generalResponseBody struct {
	Output []struct {
		// Type is the type of the output item: message, function_call or
		// reasoning.
		Type    string `json:"type"`
		Content []struct {
			// Type is 'output_text' or 'refusal'.
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Usage *responseBodyUsage `json:"usage"`
}
