package openai

import (
	"encoding/json"

	"github.com/koscakluka/ema-voice/core/llms"
)

type openAIMessage struct {
	Type    messageType `json:"type"`
	Role    messageRole `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`
}

type messageRole string

const (
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type messageType string

const (
	messageTypeMessage messageType = "message"
)

func toOpenAIMessages(instructions string, history []llms.Message) []openAIMessage {
	messages := []openAIMessage{}
	if instructions != "" {
		messages = append(messages, openAIMessage{
			Type:    messageTypeMessage,
			Role:    messageRoleDeveloper,
			Content: instructions,
		})
	}

	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		role := messageRoleUser
		switch msg.Role {
		case llms.MessageRoleAssistant:
			role = messageRoleAssistant
		case llms.MessageRoleSystem:
			role = messageRoleDeveloper
		}
		messages = append(messages, openAIMessage{
			Type:    messageTypeMessage,
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}

type requestBody struct {
	Model           string           `json:"model"`
	Input           []openAIMessage  `json:"input"`
	Stream          bool             `json:"stream"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Text            *requestBodyText `json:"text,omitempty"`
}

type requestBodyText struct {
	Format requestBodyTextFormat `json:"format"`
}

type requestBodyTextFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict bool            `json:"strict,omitempty"`
}

func newRequestBody(model string, history []llms.Message, options llms.PromptOptions) requestBody {
	return requestBody{
		Model:           model,
		Input:           toOpenAIMessages(options.Instructions, history),
		Temperature:     options.Temperature,
		TopP:            options.TopP,
		MaxOutputTokens: options.MaxTokens,
	}
}

// responseBodyUsage represents token usage details including input tokens,
// output tokens, a breakdown of output tokens, and the total tokens used.
type responseBodyUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	OutputTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	TotalTokens int `json:"total_tokens"`
}
