package groq

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PromptWithStructure asks for a response matching the JSON schema of output
// and decodes it into output. Responses that do not validate are reported as
// llms.ErrFormatMismatch.
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
	if schemaString, err := schema.Schema.MarshalJSON(); err == nil {
		span.SetAttributes(attribute.String("request.schema", string(schemaString)))
	}

	content, err := c.complete(ctx, history, llms.NewPromptOptions(opts...), &ChatResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name:   schema.Name,
			Schema: *schema.Schema,
			Strict: true,
		},
	})
	if err != nil {
		return fail(err)
	}

	if err := schema.Decode(content, output); err != nil {
		return fail(err)
	}
	return nil
}

type ChatResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	// Name is the name of the chat completion response format json
	// schema.
	//
	// it is used to further identify the schema in the response.
	Name string `json:"name"`
	// Description is the description of the chat completion
	// response format json schema.
	Description string `json:"description,omitempty"`
	// Schema is the schema of the chat completion response format
	// json schema.
	Schema jsonschema.Schema `json:"schema"`
	// Strict determines whether to enforce the schema upon the
	// generated content.
	Strict bool `json:"strict"`
}
