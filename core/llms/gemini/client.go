package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"
)

// Client wraps the Gemini API through the genai SDK.
type Client struct {
	model  string
	client *genai.Client
}

type clientOptions struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*clientOptions)

func WithAPIKey(apiKey string) ClientOption {
	return func(o *clientOptions) {
		o.apiKey = apiKey
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// NewClient creates a Gemini client for model. The key defaults to
// GEMINI_API_KEY.
func NewClient(ctx context.Context, model string, opts ...ClientOption) (*Client, error) {
	options := clientOptions{apiKey: os.Getenv("GEMINI_API_KEY")}
	for _, opt := range opts {
		opt(&options)
	}
	if options.httpClient == nil {
		options.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      options.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  options.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: options.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{model: model, client: client}, nil
}

func toContents(history []llms.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		if msg.Content == "" || msg.Role == llms.MessageRoleSystem {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == llms.MessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

func toConfig(history []llms.Message, options llms.PromptOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{StopSequences: options.Stop}

	instructions := options.Instructions
	for _, msg := range history {
		if msg.Role == llms.MessageRoleSystem && msg.Content != "" {
			if instructions != "" {
				instructions += "\n\n"
			}
			instructions += msg.Content
		}
	}
	if instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}

	if options.Temperature != nil {
		config.Temperature = utils.Ptr(float32(*options.Temperature))
	}
	if options.TopP != nil {
		config.TopP = utils.Ptr(float32(*options.TopP))
	}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(options.MaxTokens)
	}

	return config
}

// normalizeError maps SDK errors onto *llms.APIError so retries treat every
// provider alike.
func normalizeError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llms.APIError{
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			Status:     apiErr.Status,
			Body:       apiErr.Message,
		}
	}
	return err
}
