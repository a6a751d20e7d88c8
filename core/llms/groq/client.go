package groq

import (
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// Client talks to the Groq chat completions API. It satisfies the
// llms.StreamingLLM, llms.GeneralLLM and llms.StructuredLLM interfaces.
type Client struct {
	apiKey  string
	model   string
	baseURL string

	httpClient *http.Client
}

type ClientOption func(*Client)

// NewClient creates a client for the given model. The API key is read from
// GROQ_API_KEY unless WithAPIKey is passed.
func NewClient(model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  os.Getenv("GROQ_API_KEY"),
		model:   model,
		baseURL: defaultBaseURL,
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

func (c *Client) Model() string {
	return c.model
}

func (c *Client) completionsURL() string {
	return c.baseURL + "/chat/completions"
}
