package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/recognition"
)

var ErrAlreadyListening = errors.New("already listening")

// stopGrace is how long a stopped listener may keep delivering what the user
// was saying before it is cancelled.
const stopGrace = 2 * time.Second

type listener struct {
	cancel   context.CancelFunc
	stopping atomic.Bool
	done     chan struct{}
}

// StartListening runs recognition continuously until StopListening is called
// or ctx is done. Every utterance is emitted and prompted, interrupting the
// response in progress.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	if o.recognition == nil {
		return ErrNoRecognition
	}

	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	if o.listener != nil {
		return ErrAlreadyListening
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &listener{cancel: cancel, done: make(chan struct{})}
	o.listener = l

	go func() {
		defer close(l.done)
		defer cancel()

		if err := panicSafeNamedWorker("listener", o.listen(l))(ctx); err != nil {
			o.recordError(err)
		}

		o.listenMu.Lock()
		if o.listener == l {
			o.listener = nil
		}
		o.listenMu.Unlock()
	}()

	return nil
}

// StopListening ends the listener. Words the user already started are still
// delivered.
func (o *Orchestrator) StopListening() {
	o.listenMu.Lock()
	l := o.listener
	o.listener = nil
	o.listenMu.Unlock()

	if l == nil {
		return
	}

	l.stopping.Store(true)
	o.recognition.Interrupt(true)
	time.AfterFunc(stopGrace, l.cancel)
}

// Listening reports whether the listener is running.
func (o *Orchestrator) Listening() bool {
	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	return o.listener != nil
}

func (o *Orchestrator) listen(l *listener) workerRun {
	return func(ctx context.Context) error {
		for ctx.Err() == nil && !l.stopping.Load() {
			session := o.recognition.Listen(ctx)
			// A session created after StopListening would not be stopped by it
			if l.stopping.Load() {
				return nil
			}

			for utterance := range session.Utterances() {
				o.hear(utterance)
			}

			err := session.Err()
			if err != nil && ctx.Err() == nil {
				logger.Warn("recognition session failed", "error", err)
			}
			if err != nil || len(session.Heard()) == 0 {
				select {
				case <-ctx.Done():
				case <-time.After(o.listenRetryDelay):
				}
			}
		}
		return nil
	}
}

func (o *Orchestrator) hear(utterance *recognition.Utterance) {
	text := strings.TrimSpace(utterance.Display())
	o.emit(events.NewUserUtterance(text, utterance.Language(), utterance.Words()))
	if text == "" {
		return
	}

	if _, err := o.Prompt(o.baseContext, text); err != nil {
		logger.Warn("failed to prompt recognized utterance", "error", err)
	}
}
