package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/synthesis"
)

type fakePlayer struct {
	mu      sync.Mutex
	audio   int
	cleared int
}

func (p *fakePlayer) SendAudio(audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio += len(audio)
	return nil
}

func (p *fakePlayer) Mark(name string, callback func(string)) error {
	go callback(name)
	return nil
}

func (p *fakePlayer) ClearBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
}

// newSpeakServer imitates the speak websocket: every flush is answered with
// bytesPerPhrase bytes of audio and a Flushed message.
func newSpeakServer(t *testing.T, bytesPerPhrase int, received chan<- speakMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token key" {
			t.Errorf("expected token auth, got %q", r.Header.Get("Authorization"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg speakMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
			switch msg.Type {
			case "Flush":
				conn.WriteMessage(websocket.BinaryMessage, make([]byte, bytesPerPhrase))
				conn.WriteJSON(websocketMessage{Type: "Flushed"})
			case "Close":
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func endpointOf(server *httptest.Server) url.URL {
	endpoint, _ := url.Parse(server.URL)
	endpoint.Scheme = "ws"
	return *endpoint
}

func TestSynthesizeSpreadsPhraseAudioOverWords(t *testing.T) {
	received := make(chan speakMessage, 16)
	// 16kHz linear16, 32000 bytes is one second per phrase
	server := newSpeakServer(t, 32000, received)
	player := &fakePlayer{}
	backend := NewBackend(player, WithAPIKey("key"), WithEndpoint(endpointOf(server)),
		WithEncodingInfo(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}))

	events := make(chan synthesis.Event, 16)
	if _, err := backend.Synthesize(context.Background(), "Hi there. Bye.", func(event synthesis.Event) { events <- event }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var words []synthesis.WordBoundary
	started := false
wait:
	for {
		select {
		case event := <-events:
			switch event := event.(type) {
			case synthesis.SessionStarted:
				started = true
			case synthesis.WordBoundary:
				words = append(words, event)
			case synthesis.SessionCompleted:
				break wait
			case synthesis.SessionCanceled:
				t.Fatalf("expected completion, got cancellation: %v", event.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got words %+v", words)
		}
	}

	if !started {
		t.Fatalf("expected session start")
	}
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %+v", words)
	}
	if words[0].Text != "Hi" || words[0].AudioOffset != 0 {
		t.Fatalf("expected first word at zero, got %+v", words[0])
	}
	if words[2].Text != "Bye." || words[2].AudioOffset != time.Second || words[2].Duration != time.Second {
		t.Fatalf("expected second phrase to start after the first, got %+v", words[2])
	}
	// "Hi" and "there." share the first second 2:6
	if words[1].AudioOffset != 250*time.Millisecond {
		t.Fatalf("expected proportional split, got %+v", words[1])
	}

	var speaks []string
	for len(received) > 0 {
		if msg := <-received; msg.Type == "Speak" {
			speaks = append(speaks, msg.Text)
		}
	}
	if strings.Join(speaks, "|") != "Hi there.|Bye." {
		t.Fatalf("expected phrases sent one by one, got %q", speaks)
	}
}

func TestSynthesizeRequiresAPIKey(t *testing.T) {
	backend := NewBackend(&fakePlayer{}, WithAPIKey(""))
	if _, err := backend.Synthesize(context.Background(), "hi", func(synthesis.Event) {}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestSpreadIgnoresEmptyPhrase(t *testing.T) {
	if events := spread("   ", 0, time.Second); len(events) != 0 {
		t.Fatalf("expected no boundaries, got %v", events)
	}
}
