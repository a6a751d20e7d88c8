// Package synthesis speaks text through a Backend and replays the backend's
// word boundaries in step with the audio.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/fence"
	"github.com/koscakluka/ema-voice/core/handoff"
	"github.com/koscakluka/ema-voice/core/speech"
	"github.com/koscakluka/ema-voice/core/ssml"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrBackendCanceled = errors.New("synthesis canceled by backend")

	errInterrupted = errors.New("interrupted")
)

// Engine owns the single synthesis slot. Only one Session speaks at a time;
// later sessions wait for the slot to be released.
type Engine struct {
	backend Backend
	fence   *fence.Fence

	slot chan struct{}

	lead         time.Duration
	pollInterval time.Duration
	language     string
	now          func() time.Time

	wordsCounter        metric.Int64Counter
	interruptionCounter metric.Int64Counter
}

func NewEngine(backend Backend, f *fence.Fence, opts ...Option) *Engine {
	e := &Engine{
		backend:      backend,
		fence:        f,
		slot:         make(chan struct{}, 1),
		lead:         DefaultLead,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	var err error
	if e.wordsCounter, err = meter.Int64Counter("synthesis.words",
		metric.WithDescription("Words yielded in step with synthesized audio")); err != nil {
		logger.Warn("failed to create words counter", "error", err)
	}
	if e.interruptionCounter, err = meter.Int64Counter("synthesis.interruptions"); err != nil {
		logger.Warn("failed to create interruption counter", "error", err)
	}

	return e
}

// Request is what to say. Phrases take precedence over Text; Markup, when
// set, is sent to the backend as is.
type Request struct {
	Text    string
	Voice   string
	Style   string
	Phrases []ssml.Phrase
	Markup  string
}

func (e *Engine) markup(req Request) string {
	if req.Markup != "" {
		return req.Markup
	}

	builder := ssml.NewBuilder(e.backend.Dialect())
	if e.language != "" {
		builder.Language = e.language
	}
	if len(req.Phrases) > 0 {
		return builder.BuildPhrases(req.Phrases)
	}
	return builder.Build(req.Text, req.Voice, req.Style)
}

// Speaking reports whether a session currently holds the synthesis slot.
func (e *Engine) Speaking() bool {
	return len(e.slot) > 0
}

// Speak prepares a session for req. Nothing is synthesized until the
// session's words are ranged over. The session is bound to the fence state at
// the time of this call.
func (e *Engine) Speak(ctx context.Context, req Request) *Session {
	return e.SpeakFrom(ctx, e.fence.Begin(), req)
}

// SpeakFrom is Speak bound to a fence stamp taken earlier with Begin, so
// several sessions can share one stamp.
func (e *Engine) SpeakFrom(ctx context.Context, start int64, req Request) *Session {
	return &Session{
		ID:     uuid.New(),
		engine: e,
		ctx:    ctx,
		req:    req,
		start:  start,
	}
}

type Session struct {
	ID uuid.UUID

	engine *Engine
	ctx    context.Context
	req    Request
	start  int64

	once sync.Once

	mu        sync.Mutex
	startTime time.Time
	completed bool
	err       error
	words     []speech.TimedWord
}

// Words synthesizes the request and yields every word once its audio is
// reached. Iteration ends early on interruption, on cancellation by the
// backend or when ctx is done. A session can be ranged over only once.
func (s *Session) Words() func(func(speech.TimedWord) bool) {
	return func(yield func(speech.TimedWord) bool) {
		s.once.Do(func() {
			ctx, span := tracer.Start(s.ctx, "speak")
			defer span.End()
			span.SetAttributes(attribute.String("session.id", s.ID.String()))

			completed, err := s.run(ctx, yield)

			s.mu.Lock()
			s.completed = completed
			s.err = err
			wordCount := len(s.words)
			s.mu.Unlock()

			span.SetAttributes(
				attribute.Bool("session.completed", completed),
				attribute.Int("session.words", wordCount),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		})
	}
}

// Result reports whether every word was yielded and the error that ended
// the session, if any. It is meaningful once Words has returned.
func (s *Session) Result() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.err
}

// StartTime is the moment playback started.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Spoken returns the words yielded so far.
func (s *Session) Spoken() []speech.TimedWord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.TimedWord(nil), s.words...)
}

type scheduledWord struct {
	at   time.Time
	word speech.TimedWord
}

func (s *Session) run(ctx context.Context, yield func(speech.TimedWord) bool) (bool, error) {
	e := s.engine
	if s.stale() {
		return false, nil
	}

	if err := s.acquire(ctx); errors.Is(err, errInterrupted) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	defer func() { <-e.slot }()

	if s.stale() {
		return false, nil
	}

	events := handoff.NewQueue[Event]()
	defer events.Kill()

	handle, err := e.backend.Synthesize(ctx, e.markup(s.req), func(event Event) {
		_ = events.Put(event)
	})
	if err != nil {
		return false, fmt.Errorf("failed to start synthesis: %w", err)
	}
	stop := func() {
		if err := handle.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to stop synthesis backend", "error", err)
		}
	}

	var (
		t0            time.Time
		started       bool
		backendDone   bool
		pending       []scheduledWord
		lastScheduled time.Time
		lastOffset    time.Duration
		yielded       int
		early         []WordBoundary
	)

	schedule := func(event WordBoundary) {
		offset := max(event.AudioOffset, lastOffset)
		lastOffset = offset

		at := t0.Add(event.AudioOffset + perCharacter(event.Duration, event.WordLength) + e.lead)
		if at.Before(lastScheduled) {
			at = lastScheduled
		}
		lastScheduled = at

		pending = append(pending, scheduledWord{at: at, word: speech.TimedWord{
			Text:     event.Text,
			Category: speech.CategoryOf(event.Text),
			Offset:   offset,
			Duration: event.Duration,
			Source:   speech.SourceSynthesis,
		}})
	}
	// Boundaries may arrive before playback starts; they are held back
	// until t0 is known.
	begin := func(at time.Time) {
		if started {
			return
		}
		t0 = at
		if t0.IsZero() {
			t0 = e.now()
		}
		started = true
		s.mu.Lock()
		s.startTime = t0
		s.mu.Unlock()

		for _, event := range early {
			schedule(event)
		}
		early = nil
	}

	for {
		updated := events.Updated()
		changed := e.fence.Changed()

		for {
			event, ok := events.TryPop()
			if !ok {
				break
			}

			switch event := event.(type) {
			case SessionStarted:
				begin(event.At)

			case WordBoundary:
				if !started {
					early = append(early, event)
					continue
				}
				schedule(event)

			case SessionCompleted:
				if !started {
					begin(time.Time{})
				}
				backendDone = true

			case SessionCanceled:
				stop()
				if event.Err != nil {
					return false, fmt.Errorf("%w: %w", ErrBackendCanceled, event.Err)
				}
				return false, nil
			}
		}

		if s.stale() {
			stop()
			if e.interruptionCounter != nil {
				e.interruptionCounter.Add(ctx, 1)
			}
			return false, nil
		}

		now := e.now()
		for len(pending) > 0 && !pending[0].at.After(now) {
			if s.stale() {
				stop()
				return false, nil
			}

			word := pending[0].word
			word.Text = spaced(word, yielded == 0)
			pending = pending[1:]

			s.mu.Lock()
			s.words = append(s.words, word)
			s.mu.Unlock()
			yielded++
			if e.wordsCounter != nil {
				e.wordsCounter.Add(ctx, 1)
			}

			if !yield(word) {
				stop()
				return false, nil
			}
		}

		if backendDone && len(pending) == 0 && events.Len() == 0 {
			return true, nil
		}

		wait := e.pollInterval
		if len(pending) > 0 {
			wait = min(wait, max(pending[0].at.Sub(e.now()), 0))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			stop()
			return false, ctx.Err()
		case <-updated:
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// acquire waits for the synthesis slot, giving up when ctx is done or the
// session is interrupted while waiting.
func (s *Session) acquire(ctx context.Context) error {
	for {
		changed := s.engine.fence.Changed()
		select {
		case s.engine.slot <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			if s.stale() {
				return errInterrupted
			}
		}
	}
}

func (s *Session) stale() bool {
	return s.engine.fence.Stale(s.start)
}

func perCharacter(duration time.Duration, length int) time.Duration {
	if length <= 0 {
		return 0
	}
	return duration / time.Duration(length)
}

// spaced returns the word text as it should be appended to what was already
// said: the first word and punctuation attach directly, everything else gets
// a single leading space.
func spaced(word speech.TimedWord, first bool) string {
	if first || word.Category == speech.CategoryPunctuation {
		return word.Text
	}
	return " " + word.Text
}
