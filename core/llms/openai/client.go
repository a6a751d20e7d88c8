package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to the OpenAI Responses API.
type Client struct {
	apiKey       string
	organization string
	project      string
	model        string
	baseURL      string

	httpClient *http.Client
}

type ClientOption func(*Client)

// NewClient creates a client for the given model. Credentials default to
// OPENAI_API_KEY, OPENAI_ORG_ID and OPENAI_PROJECT_ID.
func NewClient(model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:       os.Getenv("OPENAI_API_KEY"),
		organization: os.Getenv("OPENAI_ORG_ID"),
		project:      os.Getenv("OPENAI_PROJECT_ID"),
		model:        model,
		baseURL:      defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
	}

	return c
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithOrganization(organization, project string) ClientOption {
	return func(c *Client) {
		c.organization = organization
		c.project = project
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func (c *Client) send(ctx context.Context, span trace.Span, body requestBody) (*http.Response, error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}
	if c.project != "" {
		req.Header.Set("OpenAI-Project", c.project)
	}

	span.SetAttributes(attribute.String("request.url", req.URL.String()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &llms.APIError{Provider: "openai", StatusCode: resp.StatusCode, Status: resp.Status}
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			apiErr.Body = strings.TrimSpace(string(errorBody))
			span.SetAttributes(attribute.String("response.error", apiErr.Body))
		}
		return nil, apiErr
	}

	return resp, nil
}
