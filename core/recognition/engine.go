// Package recognition listens through a Backend and hands finalized
// utterances to the caller, honouring soft and hard interruptions.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/fence"
	"github.com/koscakluka/ema-voice/core/handoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const DefaultLanguage = "en-US"

var (
	ErrBackendCanceled = errors.New("recognition canceled by backend")

	errInterrupted = errors.New("interrupted")
)

// Engine owns the single recognition slot. Only one Session listens at a
// time; later sessions wait for the slot to be released.
type Engine struct {
	backend Backend
	fence   *fence.Fence

	slot chan struct{}

	language          string
	autoDetect        []string
	interruptionDelay time.Duration
	now               func() time.Time

	mu      sync.Mutex
	phrases []string
	active  map[*Session]struct{}

	utterancesCounter   metric.Int64Counter
	interruptionCounter metric.Int64Counter
}

func NewEngine(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:           backend,
		fence:             fence.New(),
		slot:              make(chan struct{}, 1),
		language:          DefaultLanguage,
		interruptionDelay: DefaultInterruptionDelay,
		now:               time.Now,
		active:            map[*Session]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}

	var err error
	if e.utterancesCounter, err = meter.Int64Counter("recognition.utterances",
		metric.WithDescription("Utterances handed to listeners")); err != nil {
		logger.Warn("failed to create utterances counter", "error", err)
	}
	if e.interruptionCounter, err = meter.Int64Counter("recognition.interruptions"); err != nil {
		logger.Warn("failed to create interruption counter", "error", err)
	}

	return e
}

// Listening reports whether a session currently holds the recognition slot.
func (e *Engine) Listening() bool {
	return len(e.slot) > 0
}

// AddPhrases adds recognition hints. They apply from the next session on.
func (e *Engine) AddPhrases(phrases ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phrases = append(e.phrases, phrases...)
}

func (e *Engine) ClearPhrases() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phrases = nil
}

func (e *Engine) Phrases() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.phrases)
}

func (e *Engine) startConfig() StartConfig {
	return StartConfig{
		Language:   e.language,
		AutoDetect: slices.Clone(e.autoDetect),
		Phrases:    e.Phrases(),
	}
}

// Interrupt ends every session created before the call. A soft interrupt
// keeps accepting speech for the interruption delay and trims utterances
// that run past it; a hard interrupt stops at once and drops whatever was
// not yet delivered.
func (e *Engine) Interrupt(soft bool) {
	at := e.now()
	e.fence.Interrupt()

	e.mu.Lock()
	active := make([]*Session, 0, len(e.active))
	for session := range e.active {
		active = append(active, session)
	}
	e.mu.Unlock()

	for _, session := range active {
		session.interrupt(soft, at)
	}
	if e.interruptionCounter != nil {
		e.interruptionCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Bool("interruption.soft", soft)))
	}
}

// Listen prepares a session. Nothing is captured until the session's
// utterances are ranged over.
func (e *Engine) Listen(ctx context.Context) *Session {
	return &Session{
		ID:          uuid.New(),
		engine:      e,
		ctx:         ctx,
		start:       e.fence.Begin(),
		interrupted: make(chan struct{}),
	}
}

func (e *Engine) register(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[s] = struct{}{}
}

func (e *Engine) unregister(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, s)
}

func (e *Engine) utteranceLanguage(result Result) string {
	if len(e.autoDetect) > 0 && result.Language != "" {
		return result.Language
	}
	return e.language
}

type Session struct {
	ID uuid.UUID

	engine *Engine
	ctx    context.Context
	start  int64

	once sync.Once

	mu            sync.Mutex
	interrupted   chan struct{}
	soft          bool
	interruptedAt time.Time
	startTime     time.Time
	err           error
	heard         []*Utterance
}

// Utterances listens and yields every finalized utterance. Iteration ends
// when the backend stops, on interruption or when ctx is done. A session can
// be ranged over only once.
func (s *Session) Utterances() func(func(*Utterance) bool) {
	return func(yield func(*Utterance) bool) {
		s.once.Do(func() {
			ctx, span := tracer.Start(s.ctx, "listen")
			defer span.End()
			span.SetAttributes(attribute.String("session.id", s.ID.String()))

			err := s.run(ctx, yield)

			s.mu.Lock()
			s.err = err
			count := len(s.heard)
			s.mu.Unlock()

			span.SetAttributes(attribute.Int("session.utterances", count))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		})
	}
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StartTime is the moment the backend started listening.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Heard returns the utterances yielded so far.
func (s *Session) Heard() []*Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.heard)
}

// Interrupted reports whether the session was interrupted and how.
func (s *Session) Interrupted() (interrupted bool, soft bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.interruptedAt.IsZero(), s.soft
}

func (s *Session) interrupt(soft bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.interruptedAt.IsZero() {
		// A hard interrupt overrides an earlier soft one, never the reverse.
		if s.soft && !soft {
			s.soft = false
			close(s.interrupted)
			s.interrupted = make(chan struct{})
		}
		return
	}
	s.soft = soft
	s.interruptedAt = at
	close(s.interrupted)
	s.interrupted = make(chan struct{})
}

// cutoff returns the offset past which speech is no longer accepted. It is
// only meaningful after a soft interrupt.
func (s *Session) cutoff() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interruptedAt.IsZero() || !s.soft {
		return 0, false
	}
	start := s.startTime
	if start.IsZero() {
		start = s.interruptedAt
	}
	return s.interruptedAt.Sub(start) + s.engine.interruptionDelay, true
}

func (s *Session) state() (changed <-chan struct{}, interrupted bool, soft bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted, !s.interruptedAt.IsZero(), s.soft
}

func (s *Session) run(ctx context.Context, yield func(*Utterance) bool) error {
	e := s.engine
	if s.stale() {
		return nil
	}

	if err := s.acquire(ctx); errors.Is(err, errInterrupted) {
		return nil
	} else if err != nil {
		return err
	}
	defer func() { <-e.slot }()

	e.register(s)
	defer e.unregister(s)
	if s.stale() {
		return nil
	}

	events := handoff.NewQueue[Event]()
	defer events.Kill()

	handle, err := e.backend.Start(ctx, e.startConfig(), func(event Event) {
		_ = events.Put(event)
	})
	if err != nil {
		return fmt.Errorf("failed to start recognition: %w", err)
	}

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			if err := handle.Stop(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to stop recognition backend", "error", err)
			}
		})
	}
	defer stop()

	var delayedStop *time.Timer
	defer func() {
		if delayedStop != nil {
			delayedStop.Stop()
		}
	}()

	for {
		updated := events.Updated()
		changed, interrupted, soft := s.state()
		if interrupted && !soft {
			stop()
			return nil
		}
		if interrupted && delayedStop == nil {
			delayedStop = time.AfterFunc(e.interruptionDelay, stop)
		}

		for {
			event, ok := events.TryPop()
			if !ok {
				break
			}

			switch event := event.(type) {
			case Started:
				s.mu.Lock()
				if s.startTime.IsZero() {
					s.startTime = event.At
					if s.startTime.IsZero() {
						s.startTime = e.now()
					}
				}
				s.mu.Unlock()

			case Recognized:
				if _, interrupted, soft := s.state(); interrupted && !soft {
					stop()
					return nil
				}

				utterance := NewUtterance(event.Result, e.utteranceLanguage(event.Result))
				if cutoff, ok := s.cutoff(); ok {
					if utterance.Offset() > cutoff {
						stop()
						return nil
					}
					if utterance.End() > cutoff {
						utterance = utterance.FromCutoff(0, cutoff)
						if utterance == nil {
							continue
						}
					}
				}

				s.mu.Lock()
				s.heard = append(s.heard, utterance)
				s.mu.Unlock()
				if e.utterancesCounter != nil {
					e.utterancesCounter.Add(ctx, 1)
				}

				if !yield(utterance) {
					return nil
				}

			case Stopped:
				events.Close()

			case Canceled:
				if event.Err != nil {
					return fmt.Errorf("%w: %w", ErrBackendCanceled, event.Err)
				}
				return nil
			}
		}

		if events.Finished() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updated:
		case <-changed:
		}
	}
}

// acquire waits for the recognition slot, giving up when ctx is done or the
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
