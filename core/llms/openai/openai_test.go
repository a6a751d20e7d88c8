package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-model", WithAPIKey("key"), WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestToOpenAIMessages(t *testing.T) {
	messages := toOpenAIMessages("be kind", []llms.Message{
		llms.NewUserMessage("hi"),
		llms.NewAssistantMessage(""),
		llms.NewAssistantMessage("hello"),
	})

	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Role != messageRoleDeveloper || messages[0].Content != "be kind" {
		t.Fatalf("expected developer instructions first, got %+v", messages[0])
	}
	if messages[2].Role != messageRoleAssistant || messages[2].Content != "hello" {
		t.Fatalf("expected assistant message last, got %+v", messages[2])
	}
}

func TestStreamParsesEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Errorf("expected streaming request")
		}
		fmt.Fprint(w, "event: response.created\ndata: {}\n\n")
		for _, delta := range []string{"One.", " Two."} {
			fmt.Fprintf(w, "event: response.output_text.delta\ndata: {\"delta\":%q}\n\n", delta)
		}
		fmt.Fprint(w, "event: response.completed\ndata: {\"response\":{\"usage\":{\"input_tokens\":3,\"output_tokens\":2,\"total_tokens\":5}}}\n\n")
	})

	var text strings.Builder
	var usage llms.Usage
	for chunk, err := range client.PromptWithStream(context.Background(), nil).Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		switch c := chunk.(type) {
		case llms.StreamContentChunk:
			text.WriteString(c.Content())
		case llms.StreamUsageChunk:
			usage = c.Usage()
		}
	}

	if text.String() != "One. Two." {
		t.Fatalf("expected streamed text, got %q", text.String())
	}
	if usage.TotalTokens != 5 {
		t.Fatalf("expected 5 total tokens, got %d", usage.TotalTokens)
	}
}

func TestPromptJoinsOutputText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"output":[{"type":"reasoning"},{"type":"message","content":[{"type":"output_text","text":"done"}]}]}`)
	})

	got, err := client.Prompt(context.Background(), []llms.Message{llms.NewUserMessage("go")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "done" {
		t.Fatalf("expected done, got %q", got)
	}
}
