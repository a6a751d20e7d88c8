package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/sentences"
	"github.com/koscakluka/ema-voice/core/synthesis"
)

type streamingRequest struct {
	ws   *websocket.Conn
	wsMu sync.Mutex

	player   audio.Player
	encoding audio.EncodingInfo
	emit     func(synthesis.Event)

	mu          sync.Mutex
	phrases     []string
	phraseBytes int
	offset      time.Duration
	started     bool
	closed      bool
}

func newStreamingRequest(ws *websocket.Conn, player audio.Player, encoding audio.EncodingInfo, emit func(synthesis.Event)) *streamingRequest {
	return &streamingRequest{ws: ws, player: player, encoding: encoding, emit: emit}
}

// start queues text phrase by phrase. Deepgram drops text sent right after a
// flush, so only the first phrase is sent now and every following one once
// the previous flush is confirmed.
func (r *streamingRequest) start(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phrases = append(r.phrases, sentences.Trimmed(text)...)
	if len(r.phrases) == 0 {
		r.closed = true
		r.emit(synthesis.SessionStarted{At: time.Now()})
		r.emit(synthesis.SessionCompleted{})
		return r.sendWebsocketMessage(closeMsg)
	}

	return r.sendPhraseLocked()
}

func (r *streamingRequest) sendPhraseLocked() error {
	if err := r.sendWebsocketMessage(sendTextMsg(r.phrases[0])); err != nil {
		return fmt.Errorf("failed to send websocket speak message: %w", err)
	}
	if err := r.sendWebsocketMessage(flushMsg); err != nil {
		return fmt.Errorf("failed to send websocket flush message: %w", err)
	}
	return nil
}

func (r *streamingRequest) processIncomingMessages(ctx context.Context) {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.closed = true
			r.mu.Unlock()

			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.WarnContext(ctx, "websocket read error", "error", err)
				r.emit(synthesis.SessionCanceled{Err: fmt.Errorf("deepgram connection lost: %w", err)})
			} else if !closed {
				r.emit(synthesis.SessionCanceled{})
			}
			_ = r.ws.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			r.handleAudio(msg)
		case websocket.TextMessage:
			var parsedMsg websocketMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.DebugContext(ctx, "failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				r.handleFlushed()
			case "Warning", "Error":
				logger.WarnContext(ctx, "deepgram reported a problem", "message", string(msg))
			}
		}
	}
}

func (r *streamingRequest) handleAudio(msg []byte) {
	if len(msg) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if err := r.player.SendAudio(msg); err != nil {
		logger.Warn("failed to play deepgram audio", "error", err)
		return
	}
	if !r.started {
		r.started = true
		r.emit(synthesis.SessionStarted{At: time.Now()})
	}
	r.phraseBytes += len(msg)
}

// handleFlushed closes the current phrase: its audio is complete, so its
// words can be placed on the timeline.
func (r *streamingRequest) handleFlushed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.phrases) == 0 {
		return
	}

	duration := r.encoding.Duration(r.phraseBytes)
	for _, boundary := range spread(r.phrases[0], r.offset, duration) {
		r.emit(boundary)
	}
	r.offset += duration
	r.phraseBytes = 0
	r.phrases = r.phrases[1:]

	if len(r.phrases) > 0 {
		if err := r.sendPhraseLocked(); err != nil {
			r.closed = true
			r.emit(synthesis.SessionCanceled{Err: err})
		}
		return
	}

	if !r.started {
		r.started = true
		r.emit(synthesis.SessionStarted{At: time.Now()})
	}
	if err := r.player.Mark("deepgram", func(string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		r.closed = true
		r.emit(synthesis.SessionCompleted{})
		_ = r.sendWebsocketMessage(closeMsg)
	}); err != nil {
		r.closed = true
		r.emit(synthesis.SessionCanceled{Err: err})
	}
}

// Stop clears Deepgram's buffer and local playback, then closes the socket.
func (r *streamingRequest) Stop(context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.player.ClearBuffer()

	var errs []error
	if err := r.sendWebsocketMessage(clearMsg); err != nil {
		errs = append(errs, err)
	}
	if err := r.sendWebsocketMessage(closeMsg); err != nil {
		errs = append(errs, err)
		if aggressiveCloseErr := r.ws.Close(); aggressiveCloseErr != nil {
			errs = append(errs, aggressiveCloseErr)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(errs...))
	}
	return nil
}

// spread estimates word boundaries by sharing the phrase's duration between
// its words in proportion to their length.
func spread(phrase string, offset, duration time.Duration) []synthesis.Event {
	words := strings.Fields(phrase)
	characters := 0
	for _, word := range words {
		characters += len(word)
	}
	if characters == 0 {
		return nil
	}

	events := make([]synthesis.Event, 0, len(words))
	for _, word := range words {
		wordDuration := duration * time.Duration(len(word)) / time.Duration(characters)
		events = append(events, synthesis.WordBoundary{
			Text:        word,
			AudioOffset: offset,
			Duration:    wordDuration,
			WordLength:  len(word),
		})
		offset += wordDuration
	}
	return events
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	sendTextMsg = func(text string) speakMessage {
		return speakMessage{Type: "Speak", Text: text}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (r *streamingRequest) sendWebsocketMessage(msg any) error {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	if r.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
