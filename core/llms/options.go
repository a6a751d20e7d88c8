package llms

// PromptOptions are the sampling parameters and instructions shared by every
// backend. Zero values mean "use the backend default".
type PromptOptions struct {
	Instructions string
	Temperature  *float64
	TopP         *float64
	MaxTokens    int
	Stop         []string
}

type PromptOption func(*PromptOptions)

func NewPromptOptions(opts ...PromptOption) PromptOptions {
	options := PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithSystemPrompt sets the system prompt for the prompt.
// Repeating this option will overwrite the previous system prompt.
func WithSystemPrompt(prompt string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Instructions = prompt
	}
}

func WithTemperature(temperature float64) PromptOption {
	return func(opts *PromptOptions) {
		opts.Temperature = &temperature
	}
}

func WithTopP(topP float64) PromptOption {
	return func(opts *PromptOptions) {
		opts.TopP = &topP
	}
}

// WithMaxTokens caps the number of generated tokens.
func WithMaxTokens(maxTokens int) PromptOption {
	return func(opts *PromptOptions) {
		opts.MaxTokens = maxTokens
	}
}

func WithStop(stop ...string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Stop = stop
	}
}
