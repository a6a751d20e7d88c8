package miniaudio

import (
	"bytes"
	"testing"
	"time"
)

func TestPlaybackBufferFillsInOrder(t *testing.T) {
	buffer := playbackBuffer{}
	buffer.push([]byte{1, 2, 3})
	buffer.push([]byte{4, 5})

	out := make([]byte, 4)
	if n := buffer.fill(out); n != 4 || !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("expected first four bytes, got %v (%d)", out, n)
	}
	if n := buffer.fill(out); n != 1 || out[0] != 5 {
		t.Fatalf("expected last byte, got %v (%d)", out[:n], n)
	}
	if buffer.len() != 0 {
		t.Fatalf("expected buffer to be drained, got %d bytes", buffer.len())
	}
}

func TestPlaybackBufferFiresMarksWhenReached(t *testing.T) {
	buffer := playbackBuffer{}
	reached := make(chan string, 2)

	buffer.push(make([]byte, 4))
	buffer.mark("first", func(name string) { reached <- name })
	buffer.push(make([]byte, 4))
	buffer.mark("second", func(name string) { reached <- name })

	buffer.fill(make([]byte, 3))
	select {
	case name := <-reached:
		t.Fatalf("expected no mark yet, got %q", name)
	case <-time.After(20 * time.Millisecond):
	}

	buffer.fill(make([]byte, 3))
	select {
	case name := <-reached:
		if name != "first" {
			t.Fatalf("expected first mark, got %q", name)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected first mark to fire")
	}

	buffer.fill(make([]byte, 3))
	select {
	case name := <-reached:
		if name != "second" {
			t.Fatalf("expected second mark, got %q", name)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected second mark to fire")
	}
}

func TestPlaybackBufferMarkOnEmptyBufferFiresOnNextFill(t *testing.T) {
	buffer := playbackBuffer{}
	reached := make(chan string, 1)
	buffer.mark("end", func(name string) { reached <- name })

	buffer.fill(make([]byte, 8))
	select {
	case <-reached:
	case <-time.After(time.Second):
		t.Fatalf("expected mark to fire")
	}
}

func TestPlaybackBufferClearDropsMarks(t *testing.T) {
	buffer := playbackBuffer{}
	reached := make(chan string, 1)

	buffer.push(make([]byte, 4))
	buffer.mark("dropped", func(name string) { reached <- name })
	buffer.clear()
	buffer.fill(make([]byte, 8))

	select {
	case name := <-reached:
		t.Fatalf("expected cleared mark not to fire, got %q", name)
	case <-time.After(20 * time.Millisecond):
	}
}
