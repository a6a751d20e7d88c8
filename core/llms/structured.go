package llms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	schemavalidator "github.com/santhosh-tekuri/jsonschema/v5"
)

// ResponseSchema describes the JSON shape a structured prompt must answer
// with. It keeps the reflected schema, for sending to providers, and a
// compiled validator, for checking what comes back.
type ResponseSchema struct {
	Name      string
	Schema    *jsonschema.Schema
	validator *schemavalidator.Schema
}

// NewResponseSchema reflects the schema of output, which may be a struct or a
// pointer to one.
func NewResponseSchema(output any) (*ResponseSchema, error) {
	outputType := reflect.TypeOf(output)
	if outputType == nil {
		return nil, fmt.Errorf("cannot reflect schema of nil output")
	}
	if outputType.Kind() == reflect.Ptr {
		outputType = outputType.Elem()
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.ReflectFromType(outputType)

	raw, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("error marshalling schema: %w", err)
	}

	name := outputType.Name()
	if name == "" {
		name = "response"
	}
	resourceURL := "mem://schemas/" + name + ".json"

	compiler := schemavalidator.NewCompiler()
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	validator, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &ResponseSchema{Name: name, Schema: schema, validator: validator}, nil
}

// Decode validates content against the schema and unmarshals it into output.
// Anything that is not valid JSON of the right shape is reported as a
// *FormatMismatchError.
func (s *ResponseSchema) Decode(content string, output any) error {
	content = stripCodeFence(content)

	var payload any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return &FormatMismatchError{Response: content, Reason: err}
	}
	if err := s.validator.Validate(payload); err != nil {
		return &FormatMismatchError{Response: content, Reason: err}
	}
	if err := json.Unmarshal([]byte(content), output); err != nil {
		return &FormatMismatchError{Response: content, Reason: err}
	}

	return nil
}

func stripCodeFence(content string) string {
	split := strings.Split(content, "```")
	if len(split) > 2 {
		content = strings.TrimPrefix(split[1], "json")
	}
	return strings.TrimSpace(content)
}
