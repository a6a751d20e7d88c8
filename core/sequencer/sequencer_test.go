package sequencer

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) op(name string, gate <-chan struct{}) Operation {
	return func(context.Context) error {
		if gate != nil {
			<-gate
		}
		r.mu.Lock()
		r.ran = append(r.ran, name)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ran)
}

func waitOrFail(t *testing.T, s *Sequencer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("expected sequencer to drain, got %v", err)
	}
}

func TestSequencerSkipsSupersededTasks(t *testing.T) {
	s := New()
	r := &recorder{}
	gate := make(chan struct{})

	s.AddTask(r.op("A", gate), true)
	s.AddTask(r.op("B", nil), false)
	s.AddTask(r.op("C", nil), false)
	close(gate)

	waitOrFail(t, s)

	if got := r.snapshot(); !slices.Equal(got, []string{"A", "C"}) {
		t.Fatalf("expected executed tasks [A C], got %v", got)
	}
}

func TestSequencerRunsUnskippableTasksInOrder(t *testing.T) {
	s := New()
	r := &recorder{}
	gate := make(chan struct{})

	s.AddTask(r.op("first", gate), true)
	s.AddTask(r.op("second", nil), true)
	s.AddTask(r.op("third", nil), true)
	s.AddTask(r.op("response", nil), false)
	close(gate)

	waitOrFail(t, s)

	expected := []string{"first", "second", "third", "response"}
	if got := r.snapshot(); !slices.Equal(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestSequencerIsAliveTracksLastTask(t *testing.T) {
	s := New()
	if s.IsAlive() {
		t.Fatalf("expected empty sequencer not to be alive")
	}

	gate := make(chan struct{})
	s.AddTask(func(context.Context) error {
		<-gate
		return nil
	}, false)

	if !s.IsAlive() {
		t.Fatalf("expected sequencer to be alive while task runs")
	}

	close(gate)
	waitOrFail(t, s)

	if s.IsAlive() {
		t.Fatalf("expected sequencer not to be alive after draining")
	}
}

func TestSequencerReportsErrorsAndPanics(t *testing.T) {
	var mu sync.Mutex
	reported := []error{}
	s := New(WithErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))

	failure := errors.New("boom")
	r := &recorder{}
	s.AddTask(func(context.Context) error { return failure }, true)
	s.AddTask(func(context.Context) error { panic("unexpected") }, true)
	s.AddTask(r.op("after", nil), false)

	waitOrFail(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported errors, got %d", len(reported))
	}
	if !errors.Is(reported[0], failure) {
		t.Fatalf("expected first error to wrap %v, got %v", failure, reported[0])
	}
	if got := r.snapshot(); !slices.Equal(got, []string{"after"}) {
		t.Fatalf("expected task after failures to run, got %v", got)
	}
}

func TestSequencerPassesConfiguredContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	s := New(WithContext(ctx))

	got := make(chan any, 1)
	s.AddTask(func(ctx context.Context) error {
		got <- ctx.Value(key{})
		return nil
	}, true)

	waitOrFail(t, s)
	if value := <-got; value != "value" {
		t.Fatalf("expected context value %q, got %v", "value", value)
	}
}

func TestSequencerWaitReturnsAfterLastTaskSignalled(t *testing.T) {
	s := New()
	for range 50 {
		s.AddTask(func(context.Context) error { return nil }, false)
		s.mu.Lock()
		last := s.last
		s.mu.Unlock()

		waitOrFail(t, s)
		if last == nil {
			continue
		}
		select {
		case <-last.done:
		default:
			t.Fatalf("expected task completion to be signalled before Wait returned")
		}
		if s.IsAlive() {
			t.Fatalf("expected sequencer not to be alive after Wait")
		}
	}
}
