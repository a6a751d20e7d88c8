package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/fence"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/prosody"
	"github.com/koscakluka/ema-voice/core/recognition"
	"github.com/koscakluka/ema-voice/core/sequencer"
	"github.com/koscakluka/ema-voice/core/synthesis"
	"github.com/koscakluka/ema-voice/core/tokenstream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrClosed        = errors.New("orchestrator closed")
	ErrEmptyPrompt   = errors.New("empty prompt")
	ErrNoLLM         = errors.New("no streaming LLM configured")
	ErrNoSynthesis   = errors.New("no synthesis backend configured")
	ErrNoRecognition = errors.New("no recognition backend configured")
)

const closeTimeout = 5 * time.Second

type Orchestrator struct {
	fence       *fence.Fence
	sequencer   *sequencer.Sequencer
	llm         llms.StreamingLLM
	streamer    *tokenstream.Streamer
	synthesis   *synthesis.Engine
	recognition *recognition.Engine

	streamOpts         []tokenstream.Option
	synthesisBackend   synthesis.Backend
	synthesisOpts      []synthesis.Option
	recognitionBackend recognition.Backend
	recognitionOpts    []recognition.Option

	toneSelector   *prosody.ToneSelector
	phraseSelector *prosody.PhraseSelector
	voice          string
	style          string
	systemPrompt   string

	eventHandler     events.Handler
	baseContext      context.Context
	closers          []io.Closer
	listenRetryDelay time.Duration

	mu      sync.Mutex
	history []llms.Message
	turns   []*turn
	closed  bool

	listenMu sync.Mutex
	listener *listener

	closeOnce sync.Once
	closeErr  error

	turnsCounter        metric.Int64Counter
	interruptionCounter metric.Int64Counter
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		baseContext:      context.Background(),
		listenRetryDelay: DefaultListenRetryDelay,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.fence == nil {
		o.fence = fence.New()
	}
	o.sequencer = sequencer.New(
		sequencer.WithContext(o.baseContext),
		sequencer.WithErrorHandler(o.recordError),
	)
	if o.llm != nil {
		streamOpts := o.streamOpts
		if o.systemPrompt != "" {
			streamOpts = append([]tokenstream.Option{
				tokenstream.WithPromptOptions(llms.WithSystemPrompt(o.systemPrompt)),
			}, streamOpts...)
		}
		o.streamer = tokenstream.New(o.llm, o.fence, streamOpts...)
	}
	if o.synthesisBackend != nil {
		o.synthesis = synthesis.NewEngine(o.synthesisBackend, o.fence, o.synthesisOpts...)
	}
	if o.recognitionBackend != nil {
		o.recognition = recognition.NewEngine(o.recognitionBackend, o.recognitionOpts...)
	}

	var err error
	if o.turnsCounter, err = meter.Int64Counter("orchestration.turns",
		metric.WithDescription("Finished turns by outcome")); err != nil {
		logger.Warn("failed to create turns counter", "error", err)
	}
	if o.interruptionCounter, err = meter.Int64Counter("orchestration.interruptions"); err != nil {
		logger.Warn("failed to create interruption counter", "error", err)
	}

	return o
}

// Prompt queues a turn answering text. The user message is always recorded;
// the response is dropped if a newer prompt arrives before it starts, and a
// response in progress is interrupted. ctx bounds the response.
func (o *Orchestrator) Prompt(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyPrompt
	}
	if o.streamer == nil {
		return Turn{}, ErrNoLLM
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Turn{}, ErrClosed
	}
	var superseded []*turn
	for _, previous := range o.turns {
		if !previous.started && !previous.finished {
			previous.finished = true
			previous.Fenced = true
			superseded = append(superseded, previous)
		}
	}
	t := &turn{Turn: Turn{ID: uuid.New(), UserText: text, StartedAt: time.Now()}}
	o.turns = append(o.turns, t)
	snapshot := t.snapshot()
	o.mu.Unlock()

	for _, previous := range superseded {
		o.finishTurn(ctx, previous, outcomeSkipped, "")
	}

	if o.sequencer.IsAlive() {
		o.fence.Interrupt()
		if o.interruptionCounter != nil {
			o.interruptionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("interruption.cause", "prompt")))
		}
	}

	o.emit(events.NewTurnStarted(events.Turn{TurnID: t.ID}, text))
	o.sequencer.AddTask(o.recordMessage(llms.NewUserMessage(text)), true)
	o.sequencer.AddTask(o.respond(ctx, t), false)

	return snapshot, nil
}

// Speak says req outside of any turn. Voice and style default to the
// orchestrator's own.
func (o *Orchestrator) Speak(ctx context.Context, req synthesis.Request) (*synthesis.Session, error) {
	if o.synthesis == nil {
		return nil, ErrNoSynthesis
	}
	if req.Voice == "" {
		req.Voice = o.voice
	}
	if req.Style == "" {
		req.Style = o.style
	}
	return o.synthesis.Speak(ctx, req), nil
}

// Listen starts a single recognition session. Use StartListening to turn
// everything heard into prompts.
func (o *Orchestrator) Listen(ctx context.Context) (*recognition.Session, error) {
	if o.recognition == nil {
		return nil, ErrNoRecognition
	}
	return o.recognition.Listen(ctx), nil
}

// Interrupt stops everything started so far: the response being generated,
// the speech being played and the recognition in progress. A soft interrupt
// lets recognition finish the words the user already started.
func (o *Orchestrator) Interrupt(soft bool) {
	o.fence.Interrupt()
	if o.recognition != nil {
		o.recognition.Interrupt(soft)
	}
	if o.interruptionCounter != nil {
		o.interruptionCounter.Add(o.baseContext, 1, metric.WithAttributes(
			attribute.String("interruption.cause", "caller"),
			attribute.Bool("interruption.soft", soft),
		))
	}
}

// IsAlive reports whether any queued turn work is still pending.
func (o *Orchestrator) IsAlive() bool {
	return o.sequencer.IsAlive()
}

// Wait blocks until all queued turn work has finished.
func (o *Orchestrator) Wait(ctx context.Context) error {
	return o.sequencer.Wait(ctx)
}

// Turns returns snapshots of every turn in the order they were prompted.
func (o *Orchestrator) Turns() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()

	turns := make([]Turn, 0, len(o.turns))
	for _, t := range o.turns {
		turns = append(turns, t.snapshot())
	}
	return turns
}

// Messages returns the conversation history sent to the LLM, without the
// system prompt.
func (o *Orchestrator) Messages() []llms.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.history)
}

// Close stops listening, interrupts everything in flight, waits for queued
// work and closes registered resources.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		o.StopListening()
		o.Interrupt(false)

		var errs []error
		ctx, cancel := context.WithTimeout(context.WithoutCancel(o.baseContext), closeTimeout)
		if err := o.sequencer.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to wait for queued turns: %w", err))
		}
		cancel()

		for _, closer := range o.closers {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %T: %w", closer, err))
			}
		}

		o.closeErr = errors.Join(errs...)
		if o.closeErr != nil {
			span := trace.SpanFromContext(o.baseContext)
			span.RecordError(o.closeErr)
			span.SetStatus(codes.Error, o.closeErr.Error())
		}
	})
	return o.closeErr
}

func (o *Orchestrator) emit(event events.Event) {
	if o.eventHandler != nil {
		o.eventHandler(event)
	}
}

func (o *Orchestrator) recordError(err error) {
	logger.Error("turn task failed", "error", err)
	span := trace.SpanFromContext(o.baseContext)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (o *Orchestrator) recordMessage(message llms.Message) sequencer.Operation {
	return func(context.Context) error {
		o.mu.Lock()
		o.history = append(o.history, message)
		o.mu.Unlock()
		return nil
	}
}
