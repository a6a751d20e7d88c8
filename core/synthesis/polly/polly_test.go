package polly

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/koscakluka/ema-voice/core/synthesis"
)

type fakeClient struct {
	mu     sync.Mutex
	inputs []*polly.SynthesizeSpeechInput
	marks  string
	pcm    []byte
	err    error
}

func (c *fakeClient) SynthesizeSpeech(_ context.Context, params *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	c.mu.Lock()
	c.inputs = append(c.inputs, params)
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if params.OutputFormat == pollytypes.OutputFormatJson {
		return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(strings.NewReader(c.marks))}, nil
	}
	return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader(c.pcm))}, nil
}

type fakePlayer struct {
	mu      sync.Mutex
	audio   []byte
	cleared int
}

func (p *fakePlayer) SendAudio(audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = append(p.audio, audio...)
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

func collectEvents(t *testing.T, backend *Backend, markup string) []synthesis.Event {
	t.Helper()
	events := make(chan synthesis.Event, 32)
	if _, err := backend.Synthesize(context.Background(), markup, func(event synthesis.Event) { events <- event }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var collected []synthesis.Event
	for {
		select {
		case event := <-events:
			collected = append(collected, event)
			switch event.(type) {
			case synthesis.SessionCompleted, synthesis.SessionCanceled:
				return collected
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", collected)
		}
	}
}

func TestSynthesizeReplaysSpeechMarks(t *testing.T) {
	client := &fakeClient{
		marks: `{"time":0,"type":"word","start":7,"end":12,"value":"Hello"}
{"time":0,"type":"sentence","start":7,"end":19,"value":"Hello there"}
{"time":400,"type":"word","start":13,"end":18,"value":"there"}
`,
		// one second of 16kHz linear16 audio
		pcm: make([]byte, 32000),
	}
	player := &fakePlayer{}
	backend := NewBackendWithClient(Config{Region: "eu-west-1", VoiceID: "Amy"}, player, client)

	events := collectEvents(t, backend, "<speak>Hello there</speak>")

	if _, ok := events[0].(synthesis.SessionStarted); !ok {
		t.Fatalf("expected session start first, got %T", events[0])
	}
	var words []synthesis.WordBoundary
	for _, event := range events {
		if word, ok := event.(synthesis.WordBoundary); ok {
			words = append(words, word)
		}
	}
	if len(words) != 2 {
		t.Fatalf("expected 2 word boundaries, got %d", len(words))
	}
	if words[1].AudioOffset != 400*time.Millisecond || words[1].Duration != 600*time.Millisecond {
		t.Fatalf("expected last word to run until the end of audio, got %+v", words[1])
	}
	if words[0].Duration != 400*time.Millisecond || words[0].WordLength != 5 {
		t.Fatalf("expected first word to last until the second, got %+v", words[0])
	}
	if len(player.audio) != 32000 {
		t.Fatalf("expected all audio to be played, got %d bytes", len(player.audio))
	}

	if len(client.inputs) != 2 {
		t.Fatalf("expected marks and audio requests, got %d", len(client.inputs))
	}
	if client.inputs[0].TextType != pollytypes.TextTypeSsml || client.inputs[0].SpeechMarkTypes[0] != pollytypes.SpeechMarkTypeWord {
		t.Fatalf("expected ssml word marks request, got %+v", client.inputs[0])
	}
	if *client.inputs[1].SampleRate != "16000" || client.inputs[1].Engine != pollytypes.EngineNeural {
		t.Fatalf("expected neural 16kHz pcm request, got %+v", client.inputs[1])
	}
}

func TestSynthesizeReportsAPIErrors(t *testing.T) {
	client := &fakeClient{err: &smithy.GenericAPIError{Code: "InvalidSsmlException", Message: "bad markup"}}
	backend := NewBackendWithClient(Config{}, &fakePlayer{}, client)

	events := collectEvents(t, backend, "<speak>oops")

	canceled, ok := events[len(events)-1].(synthesis.SessionCanceled)
	if !ok {
		t.Fatalf("expected cancellation, got %T", events[len(events)-1])
	}
	var apiErr smithy.APIError
	if !errors.As(canceled.Err, &apiErr) || apiErr.ErrorCode() != "InvalidSsmlException" {
		t.Fatalf("expected wrapped api error, got %v", canceled.Err)
	}
	if !strings.Contains(canceled.Err.Error(), "InvalidSsmlException") {
		t.Fatalf("expected error code in message, got %v", canceled.Err)
	}
}

func TestStopClearsPlayback(t *testing.T) {
	player := &fakePlayer{}
	backend := NewBackendWithClient(Config{}, player, &fakeClient{})

	handle, err := backend.Synthesize(context.Background(), "hi", func(synthesis.Event) {})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := handle.Stop(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.cleared != 1 {
		t.Fatalf("expected player buffer to be cleared, got %d", player.cleared)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("EMA_POLLY_REGION", "")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("EMA_POLLY_VOICE", "Brian")
	t.Setenv("EMA_POLLY_ENGINE", "")

	cfg := ConfigFromEnv()
	if cfg.Region != "eu-central-1" || cfg.VoiceID != "Brian" || cfg.Engine != "neural" {
		t.Fatalf("expected env config with fallbacks, got %+v", cfg)
	}
}
