package synthesis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/fence"
	"github.com/koscakluka/ema-voice/core/speech"
	"github.com/koscakluka/ema-voice/core/ssml"
)

type fakeBackend struct {
	events []Event
	gap    time.Duration

	markups []string
	mu      sync.Mutex
	stops   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (b *fakeBackend) Dialect() ssml.Dialect { return ssml.DialectPlain }

func (b *fakeBackend) Synthesize(ctx context.Context, markup string, emit func(Event)) (Handle, error) {
	b.mu.Lock()
	b.markups = append(b.markups, markup)
	b.mu.Unlock()

	if active := b.active.Add(1); active > b.maxSeen.Load() {
		b.maxSeen.Store(active)
	}

	handle := &fakeHandle{backend: b, stopped: make(chan struct{})}
	go func() {
		for _, event := range b.events {
			select {
			case <-handle.stopped:
				return
			case <-time.After(b.gap):
			}
			switch event.(type) {
			case SessionCompleted, SessionCanceled:
				handle.finish()
			}
			emit(event)
		}
	}()
	return handle, nil
}

type fakeHandle struct {
	backend  *fakeBackend
	once     sync.Once
	finished sync.Once
	stopped  chan struct{}
}

func (h *fakeHandle) finish() {
	h.finished.Do(func() { h.backend.active.Add(-1) })
}

func (h *fakeHandle) Stop(context.Context) error {
	h.once.Do(func() {
		h.backend.stops.Add(1)
		h.finish()
		close(h.stopped)
	})
	return nil
}

func boundaries(words ...string) []Event {
	events := []Event{SessionStarted{}}
	offset := time.Duration(0)
	for _, word := range words {
		events = append(events, WordBoundary{Text: word, AudioOffset: offset, Duration: 5 * time.Millisecond, WordLength: len(word)})
		offset += 10 * time.Millisecond
	}
	return append(events, SessionCompleted{})
}

func TestWordsAreYieldedInOrderWithSpacing(t *testing.T) {
	backend := &fakeBackend{events: boundaries("Hello", ",", "world", "!"), gap: time.Millisecond}
	engine := NewEngine(backend, fence.New(), WithPollInterval(5*time.Millisecond))

	session := engine.Speak(context.Background(), Request{Text: "Hello, world!"})
	var text strings.Builder
	var words []speech.TimedWord
	for word := range session.Words() {
		text.WriteString(word.Text)
		words = append(words, word)
	}

	if text.String() != "Hello, world!" {
		t.Fatalf("expected reconstructed text, got %q", text.String())
	}
	for i := 1; i < len(words); i++ {
		if words[i].Offset < words[i-1].Offset {
			t.Fatalf("expected non-decreasing offsets, got %s after %s", words[i], words[i-1])
		}
	}
	if words[1].Category != speech.CategoryPunctuation {
		t.Fatalf("expected comma to be punctuation, got %s", words[1].Category)
	}
	completed, err := session.Result()
	if !completed || err != nil {
		t.Fatalf("expected completed session, got %v %v", completed, err)
	}
	if backend.markups[0] != "Hello, world!" {
		t.Fatalf("expected plain markup for plain dialect, got %q", backend.markups[0])
	}
}

func TestOffsetsNeverDecrease(t *testing.T) {
	backend := &fakeBackend{events: []Event{
		SessionStarted{},
		WordBoundary{Text: "a", AudioOffset: 30 * time.Millisecond, Duration: time.Millisecond, WordLength: 1},
		WordBoundary{Text: "b", AudioOffset: 10 * time.Millisecond, Duration: time.Millisecond, WordLength: 1},
		WordBoundary{Text: "c", AudioOffset: 40 * time.Millisecond, Duration: time.Millisecond, WordLength: 1},
		SessionCompleted{},
	}}
	engine := NewEngine(backend, fence.New(), WithPollInterval(5*time.Millisecond))

	var offsets []time.Duration
	for word := range engine.Speak(context.Background(), Request{Text: "a b c"}).Words() {
		offsets = append(offsets, word.Offset)
	}

	if len(offsets) != 3 {
		t.Fatalf("expected 3 words, got %d", len(offsets))
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			t.Fatalf("expected non-decreasing offsets, got %v", offsets)
		}
	}
}

func TestInterruptStopsSession(t *testing.T) {
	f := fence.New()
	backend := &fakeBackend{events: boundaries("one", "two", "three", "four", "five"), gap: 20 * time.Millisecond}
	engine := NewEngine(backend, f, WithPollInterval(5*time.Millisecond))

	session := engine.Speak(context.Background(), Request{Text: "one two three four five"})
	var words []string
	for word := range session.Words() {
		words = append(words, word.Text)
		if len(words) == 1 {
			f.Interrupt()
		}
	}

	if len(words) != 1 {
		t.Fatalf("expected no words after interruption, got %q", words)
	}
	completed, err := session.Result()
	if completed || err != nil {
		t.Fatalf("expected interrupted session without error, got %v %v", completed, err)
	}
	if backend.stops.Load() != 1 {
		t.Fatalf("expected backend to be stopped once, got %d", backend.stops.Load())
	}
	if engine.Speaking() {
		t.Fatalf("expected synthesis slot to be released")
	}
}

func TestStaleSessionNeverStarts(t *testing.T) {
	f := fence.New()
	backend := &fakeBackend{events: boundaries("late")}
	engine := NewEngine(backend, f)

	session := engine.Speak(context.Background(), Request{Text: "late"})
	f.Interrupt()
	for range session.Words() {
		t.Fatalf("expected no words from a stale session")
	}

	if len(backend.markups) != 0 {
		t.Fatalf("expected backend not to be called, got %d calls", len(backend.markups))
	}
}

func TestSessionsSharingStampAreSilencedTogether(t *testing.T) {
	f := fence.New()
	backend := &fakeBackend{events: boundaries("first"), gap: time.Millisecond}
	engine := NewEngine(backend, f, WithPollInterval(time.Millisecond))
	start := f.Begin()

	first := engine.SpeakFrom(context.Background(), start, Request{Text: "first"})
	for range first.Words() {
	}
	if completed, err := first.Result(); !completed || err != nil {
		t.Fatalf("expected first session to complete, got %v %v", completed, err)
	}

	f.Interrupt()
	second := engine.SpeakFrom(context.Background(), start, Request{Text: "second"})
	for range second.Words() {
		t.Fatalf("expected no words from a session bound to a fenced stamp")
	}
	if completed, err := second.Result(); completed || err != nil {
		t.Fatalf("expected fenced session to be incomplete without error, got %v %v", completed, err)
	}

	backend.mu.Lock()
	calls := len(backend.markups)
	backend.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected only the first session to reach the backend, got %d calls", calls)
	}
}

func TestCanceledSessionReportsError(t *testing.T) {
	cause := errors.New("connection reset")
	backend := &fakeBackend{events: []Event{SessionStarted{}, SessionCanceled{Err: cause}}}
	engine := NewEngine(backend, fence.New(), WithPollInterval(5*time.Millisecond))

	session := engine.Speak(context.Background(), Request{Text: "x"})
	for range session.Words() {
	}

	completed, err := session.Result()
	if completed {
		t.Fatalf("expected canceled session to be incomplete")
	}
	if !errors.Is(err, ErrBackendCanceled) || !errors.Is(err, cause) {
		t.Fatalf("expected backend cancel error wrapping cause, got %v", err)
	}
	if engine.Speaking() {
		t.Fatalf("expected synthesis slot to be released")
	}
}

func TestSessionsDoNotOverlap(t *testing.T) {
	backend := &fakeBackend{events: boundaries("a", "b"), gap: 5 * time.Millisecond}
	engine := NewEngine(backend, fence.New(), WithPollInterval(2*time.Millisecond))

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range engine.Speak(context.Background(), Request{Text: "a b"}).Words() {
			}
		}()
	}
	wg.Wait()

	if backend.maxSeen.Load() != 1 {
		t.Fatalf("expected a single active synthesis at a time, got %d", backend.maxSeen.Load())
	}
}

func TestWaitingSessionHonoursContext(t *testing.T) {
	backend := &fakeBackend{events: []Event{SessionStarted{}}}
	engine := NewEngine(backend, fence.New(), WithPollInterval(time.Millisecond))

	holdCtx, release := context.WithCancel(context.Background())
	holding := engine.Speak(holdCtx, Request{Text: "hold"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range holding.Words() {
		}
	}()
	for !engine.Speaking() {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waiting := engine.Speak(ctx, Request{Text: "wait"})
	for range waiting.Words() {
	}
	if _, err := waiting.Result(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while waiting for the slot, got %v", err)
	}

	release()
	<-done
}
