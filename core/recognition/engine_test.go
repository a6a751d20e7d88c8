package recognition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	started chan func(Event)
	configs chan StartConfig
	stops   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		started: make(chan func(Event), 4),
		configs: make(chan StartConfig, 4),
	}
}

func (b *fakeBackend) Start(ctx context.Context, config StartConfig, emit func(Event)) (Handle, error) {
	if active := b.active.Add(1); active > b.maxSeen.Load() {
		b.maxSeen.Store(active)
	}
	b.configs <- config
	b.started <- emit
	return &fakeHandle{backend: b, emit: emit}, nil
}

type fakeHandle struct {
	backend *fakeBackend
	emit    func(Event)
	once    sync.Once
}

func (h *fakeHandle) Stop(context.Context) error {
	h.once.Do(func() {
		h.backend.stops.Add(1)
		h.backend.active.Add(-1)
		h.emit(Stopped{})
	})
	return nil
}

func collect(session *Session) <-chan []*Utterance {
	done := make(chan []*Utterance, 1)
	go func() {
		var utterances []*Utterance
		for utterance := range session.Utterances() {
			utterances = append(utterances, utterance)
		}
		done <- utterances
	}()
	return done
}

func waitStarted(t *testing.T, backend *fakeBackend) func(Event) {
	t.Helper()
	select {
	case emit := <-backend.started:
		return emit
	case <-time.After(time.Second):
		t.Fatalf("expected backend to start")
		return nil
	}
}

func waitCollected(t *testing.T, done <-chan []*Utterance) []*Utterance {
	t.Helper()
	select {
	case utterances := <-done:
		return utterances
	case <-time.After(2 * time.Second):
		t.Fatalf("expected session to end")
		return nil
	}
}

func TestListenYieldsUtterancesUntilStopped(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngine(backend, WithLanguage("en-GB"), WithPhrases("Ema"))
	engine.AddPhrases("Luka")

	done := collect(engine.Listen(context.Background()))
	emit := waitStarted(t, backend)

	config := <-backend.configs
	if config.Language != "en-GB" || len(config.Phrases) != 2 {
		t.Fatalf("expected language and phrases to be passed, got %+v", config)
	}
	if !engine.Listening() {
		t.Fatalf("expected engine to be listening")
	}

	emit(Started{At: time.Now()})
	emit(Recognized{Result: resultWithWords(0, "hello")})
	emit(Recognized{Result: resultWithWords(time.Second, "again")})
	emit(Stopped{})

	utterances := waitCollected(t, done)
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utterances))
	}
	if utterances[0].Language() != "en-GB" {
		t.Fatalf("expected language en-GB, got %q", utterances[0].Language())
	}
}

func TestListenUsesDetectedLanguage(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngine(backend, WithAutoDetect("en-US", "hr-HR"))

	done := collect(engine.Listen(context.Background()))
	emit := waitStarted(t, backend)
	if config := <-backend.configs; len(config.AutoDetect) != 2 {
		t.Fatalf("expected candidates to be passed, got %+v", config)
	}

	result := resultWithWords(0, "bok")
	result.Language = "hr-HR"
	emit(Recognized{Result: result})
	emit(Stopped{})

	utterances := waitCollected(t, done)
	if len(utterances) != 1 || utterances[0].Language() != "hr-HR" {
		t.Fatalf("expected detected language hr-HR, got %v", utterances)
	}
}

func TestSoftInterruptTrimsAndDropsLateSpeech(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngine(backend, WithInterruptionDelay(750*time.Millisecond))

	t0 := time.Now()
	engine.now = func() time.Time { return t0.Add(750 * time.Millisecond) }

	session := engine.Listen(context.Background())
	done := collect(session)
	emit := waitStarted(t, backend)

	emit(Started{At: t0})
	// Let the session pick up its start time before interrupting.
	deadline := time.Now().Add(time.Second)
	for session.StartTime().IsZero() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	engine.Interrupt(true)
	emit(Recognized{Result: resultWithWords(0, "one", "two", "three", "four")})
	emit(Recognized{Result: resultWithWords(2*time.Second, "late")})

	utterances := waitCollected(t, done)
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utterances))
	}
	if got := len(utterances[0].Words()); got != 3 {
		t.Fatalf("expected 3 words before the cutoff, got %d", got)
	}
	if interrupted, soft := session.Interrupted(); !interrupted || !soft {
		t.Fatalf("expected a soft interruption, got interrupted=%v soft=%v", interrupted, soft)
	}
	if backend.stops.Load() != 1 {
		t.Fatalf("expected backend to be stopped once, got %d", backend.stops.Load())
	}
}

func TestHardInterruptStopsImmediately(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngine(backend)

	session := engine.Listen(context.Background())
	done := collect(session)
	emit := waitStarted(t, backend)

	emit(Started{At: time.Now()})
	engine.Interrupt(false)
	emit(Recognized{Result: resultWithWords(0, "dropped")})

	utterances := waitCollected(t, done)
	if len(utterances) != 0 {
		t.Fatalf("expected no utterances, got %d", len(utterances))
	}
	if backend.stops.Load() != 1 {
		t.Fatalf("expected backend to be stopped, got %d stops", backend.stops.Load())
	}
	if engine.Listening() {
		t.Fatalf("expected slot to be released")
	}
}

func TestInterruptedSessionNeverStarts(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngine(backend)

	session := engine.Listen(context.Background())
	engine.Interrupt(false)

	utterances := waitCollected(t, collect(session))
	if len(utterances) != 0 {
		t.Fatalf("expected no utterances, got %d", len(utterances))
	}
	if len(backend.started) != 0 {
		t.Fatalf("expected backend not to be started")
	}
}

func TestCanceledWrapsCause(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngine(backend)

	session := engine.Listen(context.Background())
	done := collect(session)
	emit := waitStarted(t, backend)

	cause := errors.New("socket closed")
	emit(Canceled{Err: cause})
	waitCollected(t, done)

	if err := session.Err(); !errors.Is(err, ErrBackendCanceled) || !errors.Is(err, cause) {
		t.Fatalf("expected canceled error wrapping cause, got %v", err)
	}
}

func TestSessionsDoNotOverlap(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngine(backend)

	first := collect(engine.Listen(context.Background()))
	emit := waitStarted(t, backend)

	second := collect(engine.Listen(context.Background()))
	select {
	case <-backend.started:
		t.Fatalf("expected second session to wait for the slot")
	case <-time.After(50 * time.Millisecond):
	}

	emit(Stopped{})
	waitCollected(t, first)

	secondEmit := waitStarted(t, backend)
	secondEmit(Stopped{})
	waitCollected(t, second)

	if backend.maxSeen.Load() > 1 {
		t.Fatalf("expected at most one active backend session, got %d", backend.maxSeen.Load())
	}
}

func TestClearPhrases(t *testing.T) {
	engine := NewEngine(newFakeBackend(), WithPhrases("one", "two"))
	engine.ClearPhrases()
	if got := engine.Phrases(); len(got) != 0 {
		t.Fatalf("expected no phrases, got %v", got)
	}
}
