package groq

import (
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-voice/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
	Name    string      `json:"name,omitempty"`
}

type messageRole string

const (
	messageRoleSystem messageRole = "system"
)

func toMessages(instructions string, history []llms.Message) ([]message, error) {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}

	converted := []message{}
	if err := copier.Copy(&converted, history); err != nil {
		return nil, err
	}

	return append(messages, converted...), nil
}

type requestBody struct {
	Model               string              `json:"model"`
	Messages            []message           `json:"messages"`
	Stream              bool                `json:"stream,omitempty"`
	Temperature         *float64            `json:"temperature,omitempty"`
	TopP                *float64            `json:"top_p,omitempty"`
	MaxCompletionTokens int                 `json:"max_completion_tokens,omitempty"`
	Stop                []string            `json:"stop,omitempty"`
	ResponseFormat      *ChatResponseFormat `json:"response_format,omitempty"`
}

func newRequestBody(model string, messages []message, options llms.PromptOptions) requestBody {
	return requestBody{
		Model:               model,
		Messages:            messages,
		Temperature:         options.Temperature,
		TopP:                options.TopP,
		MaxCompletionTokens: options.MaxTokens,
		Stop:                options.Stop,
	}
}

type usage struct {
	QueueTime               float64 `json:"queue_time"`
	PromptTokens            int     `json:"prompt_tokens"`
	PromptTime              float64 `json:"prompt_time"`
	CompletionTokens        int     `json:"completion_tokens"`
	CompletionTime          float64 `json:"completion_time"`
	TotalTokens             int     `json:"total_tokens"`
	TotalTime               float64 `json:"total_time"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details,omitempty"`
}

func (u usage) toLLMUsage() llms.Usage {
	result := llms.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
		QueueTime:    u.QueueTime,
		TotalTime:    u.TotalTime,
	}
	if u.CompletionTokensDetails != nil {
		result.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return result
}
