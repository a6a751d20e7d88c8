package llms

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single entry of the conversation history sent to an LLM.
type Message struct {
	Role    MessageRole
	Content string
	// Name optionally identifies the speaker within a role
	Name string
}

func NewSystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}
