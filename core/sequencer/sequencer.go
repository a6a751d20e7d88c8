// Package sequencer chains operations so that only one of them is logically
// active at a time.
//
// Every task waits for its predecessor to finish. When its turn comes it runs
// only if it was added as unskippable or if no newer task has been queued
// behind it; otherwise it is dropped, but it still signals completion so the
// chain keeps moving.
package sequencer

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type Operation func(ctx context.Context) error

type Sequencer struct {
	mu    sync.Mutex
	last  *task
	added int64

	baseContext context.Context
	onError     func(error)

	executedCounter metric.Int64Counter
	skippedCounter  metric.Int64Counter
}

type task struct {
	index       int64
	prev        *task
	unskippable bool
	op          Operation
	done        chan struct{}
}

type Option func(*Sequencer)

// WithContext sets the context every task is run with.
func WithContext(ctx context.Context) Option {
	return func(s *Sequencer) {
		s.baseContext = ctx
	}
}

// WithErrorHandler registers a callback for failed or panicking tasks.
func WithErrorHandler(onError func(error)) Option {
	return func(s *Sequencer) {
		s.onError = onError
	}
}

func New(opts ...Option) *Sequencer {
	s := &Sequencer{
		baseContext: context.Background(),
		onError:     func(error) {},
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.executedCounter, err = meter.Int64Counter("sequencer.tasks.executed"); err != nil {
		logger.Warn("failed to create executed task counter", "error", err)
	}
	if s.skippedCounter, err = meter.Int64Counter("sequencer.tasks.skipped"); err != nil {
		logger.Warn("failed to create skipped task counter", "error", err)
	}

	return s
}

// AddTask queues op behind every previously added task.
func (s *Sequencer) AddTask(op Operation, unskippable bool) {
	s.mu.Lock()
	t := &task{
		index:       s.added,
		prev:        s.last,
		unskippable: unskippable,
		op:          op,
		done:        make(chan struct{}),
	}
	s.added++
	s.last = t
	s.mu.Unlock()

	go s.run(t)
}

// IsAlive reports whether the most recently added task has not finished yet.
func (s *Sequencer) IsAlive() bool {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return false
	}

	select {
	case <-last.done:
		return false
	default:
		return true
	}
}

// Wait blocks until every queued task has finished or ctx is done.
func (s *Sequencer) Wait(ctx context.Context) error {
	var finished *task
	for {
		s.mu.Lock()
		last := s.last
		s.mu.Unlock()

		// last may still be set for a moment after its done channel closed
		if last == nil || last == finished {
			return nil
		}

		select {
		case <-last.done:
			finished = last
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sequencer) run(t *task) {
	defer func() {
		close(t.done)

		s.mu.Lock()
		if s.last == t {
			s.last = nil
		}
		s.mu.Unlock()
	}()

	if t.prev != nil {
		<-t.prev.done
		t.prev = nil
	}

	s.mu.Lock()
	isLast := s.last == t
	s.mu.Unlock()

	if !t.unskippable && !isLast {
		if s.skippedCounter != nil {
			s.skippedCounter.Add(s.baseContext, 1)
		}
		logger.Debug("sequenced task skipped", "task", t.index)
		return
	}

	ctx, span := tracer.Start(s.baseContext, "run sequenced task")
	span.SetAttributes(
		attribute.Int64("task.index", t.index),
		attribute.Bool("task.unskippable", t.unskippable),
	)
	if s.executedCounter != nil {
		s.executedCounter.Add(ctx, 1)
	}

	if err := runSafely(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.onError(err)
	}
	span.End()
}

func runSafely(ctx context.Context, t *task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task %d panicked: %v", t.index, recovered)
		}
	}()

	if err = t.op(ctx); err != nil {
		return fmt.Errorf("task %d failed: %w", t.index, err)
	}

	return nil
}
