package llms

import "context"

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamReasoningChunk interface {
	StreamChunk
	Reasoning() string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// ReasoningTokens represents the part of output tokens spent reasoning.
	ReasoningTokens int
	// TotalTokens represents the total number of tokens used.
	TotalTokens int

	// QueueTime represents the time it took to queue the request.
	//
	// Note: This might be just an approximation.
	QueueTime float64
	// TotalTime represents the total time it took to complete the request.
	//
	// Note: This might be just an approximation.
	TotalTime float64
}

// StreamingLLM produces a chunked delta stream for a conversation.
type StreamingLLM interface {
	PromptWithStream(ctx context.Context, messages []Message, opts ...PromptOption) Stream
}

// GeneralLLM returns the full response text for a conversation.
type GeneralLLM interface {
	Prompt(ctx context.Context, messages []Message, opts ...PromptOption) (string, error)
}

// StructuredLLM fills output, a pointer to a JSON-tagged struct, from a
// schema-constrained response.
type StructuredLLM interface {
	PromptWithStructure(ctx context.Context, messages []Message, output any, opts ...PromptOption) error
}

// ContentChunk is a plain content delta, useful for backends and tests that
// do not need their own chunk types.
type ContentChunk struct {
	Text   string
	Finish *string
}

func (c ContentChunk) FinishReason() *string { return c.Finish }
func (c ContentChunk) Content() string       { return c.Text }
