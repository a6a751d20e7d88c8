package orchestration

import (
	"context"
	"io"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/fence"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/prosody"
	"github.com/koscakluka/ema-voice/core/recognition"
	"github.com/koscakluka/ema-voice/core/synthesis"
	"github.com/koscakluka/ema-voice/core/tokenstream"
)

const DefaultListenRetryDelay = 250 * time.Millisecond

type OrchestratorOption func(*Orchestrator)

func WithStreamingLLM(client llms.StreamingLLM, opts ...tokenstream.Option) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm = client
		o.streamOpts = append(o.streamOpts, opts...)
	}
}

// WithSynthesisBackend makes the orchestrator speak its responses. Without a
// synthesis backend responses are only emitted as sentences.
func WithSynthesisBackend(backend synthesis.Backend, opts ...synthesis.Option) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesisBackend = backend
		o.synthesisOpts = append(o.synthesisOpts, opts...)
	}
}

func WithRecognitionBackend(backend recognition.Backend, opts ...recognition.Option) OrchestratorOption {
	return func(o *Orchestrator) {
		o.recognitionBackend = backend
		o.recognitionOpts = append(o.recognitionOpts, opts...)
	}
}

// WithFence shares f with the orchestrator instead of a private fence.
func WithFence(f *fence.Fence) OrchestratorOption {
	return func(o *Orchestrator) {
		o.fence = f
	}
}

func WithEventHandler(handler events.Handler) OrchestratorOption {
	return func(o *Orchestrator) {
		o.eventHandler = handler
	}
}

// WithVoice sets the voice and style used for every response unless a tone
// selector picks another style.
func WithVoice(voice, style string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.voice = voice
		o.style = style
	}
}

func WithToneSelector(selector *prosody.ToneSelector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.toneSelector = selector
	}
}

// WithPhraseSelector enables per phrase prosody. Every sentence block is
// annotated by the selector before it is spoken.
func WithPhraseSelector(selector *prosody.PhraseSelector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.phraseSelector = selector
	}
}

func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

// WithContext sets the base context for listener prompts and sequenced
// tasks.
func WithContext(ctx context.Context) OrchestratorOption {
	return func(o *Orchestrator) {
		o.baseContext = ctx
	}
}

// WithClosers registers resources, such as audio clients, that are closed
// together with the orchestrator.
func WithClosers(closers ...io.Closer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.closers = append(o.closers, closers...)
	}
}

func WithListenRetryDelay(delay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if delay >= 0 {
			o.listenRetryDelay = delay
		}
	}
}
