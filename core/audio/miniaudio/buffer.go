package miniaudio

import "sync"

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

// playbackBuffer holds audio waiting for the device and the marks placed
// between it. Positions of marks are relative to the start of the buffer.
type playbackBuffer struct {
	mu    sync.Mutex
	audio []byte
	marks []playbackMark
}

func (b *playbackBuffer) push(audio []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio, audio...)
}

func (b *playbackBuffer) mark(name string, callback func(string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks = append(b.marks, playbackMark{name: name, position: len(b.audio), callback: callback})
}

func (b *playbackBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = nil
	b.marks = nil
}

func (b *playbackBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audio)
}

// fill copies up to len(out) bytes of audio into out and fires, on a
// separate goroutine, every mark the copied audio reaches. It returns the
// number of bytes copied.
func (b *playbackBuffer) fill(out []byte) int {
	b.mu.Lock()
	n := copy(out, b.audio)
	b.audio = b.audio[n:]
	if len(b.audio) == 0 {
		b.audio = nil
	}

	passed := 0
	for i := range b.marks {
		if b.marks[i].position <= n {
			passed++
			continue
		}
		b.marks[i].position -= n
	}
	reached := b.marks[:passed]
	b.marks = b.marks[passed:]
	b.mu.Unlock()

	if len(reached) > 0 {
		go func() {
			for _, mark := range reached {
				mark.callback(mark.name)
			}
		}()
	}
	return n
}
