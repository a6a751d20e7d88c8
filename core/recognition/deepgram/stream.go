package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/recognition"
	"github.com/koscakluka/ema-voice/internal/utils"
)

const closeTimeout = 5 * time.Second

// resultsMessage holds the parts of a Results message the SDK response type
// leaves out: word timings and detected languages.
type resultsMessage struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string       `json:"transcript"`
			Confidence float64      `json:"confidence"`
			Languages  []string     `json:"languages"`
			Words      []resultWord `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type resultWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
}

// segment collects finalized pieces of speech until Deepgram reports the
// end of the utterance.
type segment struct {
	start       float64
	end         float64
	transcripts []string
	words       []resultWord
	confidences []float64
	language    string
}

func (s *segment) empty() bool {
	return len(s.transcripts) == 0 && len(s.words) == 0
}

type stream struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	encoding audio.EncodingInfo
	config   recognition.StartConfig
	emit     func(recognition.Event)
	capturer audio.Capturer

	mu        sync.Mutex
	current   segment
	lastMsgTs time.Time
	stopping  bool
	finished  bool
}

func newStream(conn *websocket.Conn, encoding audio.EncodingInfo, config recognition.StartConfig, emit func(recognition.Event)) *stream {
	return &stream{
		conn:      conn,
		encoding:  encoding,
		config:    config,
		emit:      emit,
		lastMsgTs: time.Now(),
	}
}

func (s *stream) SendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.mu.Lock()
	s.lastMsgTs = time.Now()
	s.mu.Unlock()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *stream) sendSilence(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *stream) sendControl(msgType string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	return s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: msgType})
}

// Stop stops capturing and asks Deepgram to flush what it already heard.
// The connection is closed by Deepgram once the last results are sent, or
// forcibly after a timeout.
func (s *stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping || s.finished {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	var errs []error
	if s.capturer != nil {
		if err := s.capturer.StopCapture(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop capture: %w", err))
		}
	}
	if err := s.sendControl(string(api.TypeCloseStreamResponse)); err != nil {
		errs = append(errs, fmt.Errorf("failed to close deepgram stream through websocket: %w", err))
		s.conn.Close()
	} else {
		time.AfterFunc(closeTimeout, func() { s.conn.Close() })
	}
	return errors.Join(errs...)
}

func (s *stream) readAndProcessMessages(ctx context.Context) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go s.generateSilence(silenceCtx)

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(ctx, err)
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(ctx, msg)
		}
	}
}

func (s *stream) finish(ctx context.Context, err error) {
	s.conn.Close()

	s.mu.Lock()
	stopping := s.stopping
	s.finished = true
	s.mu.Unlock()

	s.flush()
	if stopping || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.emit(recognition.Stopped{})
		return
	}
	logger.WarnContext(ctx, "failed to read deepgram websocket message", "error", err)
	s.emit(recognition.Canceled{Err: fmt.Errorf("deepgram connection lost: %w", err)})
}

func (s *stream) processMessage(ctx context.Context, msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
			return
		}
		if !msgResp.IsFinal {
			return
		}

		var results resultsMessage
		if err := json.Unmarshal(msg, &results); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal deepgram results", "error", err)
			return
		}
		s.accumulate(results)
		if msgResp.SpeechFinal {
			s.flush()
		}

	case api.TypeUtteranceEndResponse:
		s.flush()
	}
}

func (s *stream) accumulate(results resultsMessage) {
	if len(results.Channel.Alternatives) == 0 {
		return
	}
	alternative := results.Channel.Alternatives[0]
	transcript := strings.TrimSpace(alternative.Transcript)
	if transcript == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.empty() {
		s.current.start = results.Start
	}
	s.current.end = results.Start + results.Duration
	s.current.transcripts = append(s.current.transcripts, transcript)
	s.current.words = append(s.current.words, alternative.Words...)
	s.current.confidences = append(s.current.confidences, alternative.Confidence)
	if len(alternative.Languages) > 0 && s.current.language == "" {
		s.current.language = alternative.Languages[0]
	}
}

// flush emits the accumulated segment as one recognized utterance.
func (s *stream) flush() {
	s.mu.Lock()
	current := s.current
	s.current = segment{}
	s.mu.Unlock()

	if current.empty() {
		return
	}
	s.emit(recognition.Recognized{Result: current.result()})
}

func (seg *segment) result() recognition.Result {
	start, end := seg.start, seg.end
	if len(seg.words) > 0 {
		start = seg.words[0].Start
		end = seg.words[len(seg.words)-1].End
	}

	best := recognition.NBest{
		Display: strings.Join(seg.transcripts, " "),
		Words:   make([]recognition.Word, 0, len(seg.words)),
	}
	lexical := make([]string, 0, len(seg.words))
	for _, word := range seg.words {
		lexical = append(lexical, word.Word)
		best.Words = append(best.Words, recognition.Word{
			Word:       word.Word,
			Offset:     recognition.Ticks(seconds(word.Start)),
			Duration:   recognition.Ticks(seconds(word.End) - seconds(word.Start)),
			Confidence: word.Confidence,
		})
	}
	best.Lexical = strings.Join(lexical, " ")
	best.ITN = best.Lexical
	best.MaskedITN = best.Lexical
	for _, confidence := range seg.confidences {
		best.Confidence += confidence / float64(len(seg.confidences))
	}

	return recognition.Result{
		ID:                uuid.NewString(),
		RecognitionStatus: "Success",
		Offset:            recognition.Ticks(seconds(start)),
		Duration:          recognition.Ticks(max(seconds(end)-seconds(start), 0)),
		DisplayText:       best.Display,
		NBest:             []recognition.NBest{best},
		Language:          seg.language,
	}
}

func seconds(value float64) time.Duration {
	return time.Duration(math.Round(value * float64(time.Second)))
}

// generateSilence keeps the connection alive while nothing is captured: it
// pads short gaps with silence so endpointing still fires, then falls back to
// KeepAlive messages.
func (s *stream) generateSilence(ctx context.Context) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const chunkDuration = 50 * time.Millisecond
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	chunk := s.encoding.Silence(chunkDuration)

	sinceAudio := func() time.Duration {
		s.mu.Lock()
		defer s.mu.Unlock()
		return time.Since(s.lastMsgTs)
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch state {
			case silenceGeneratorStateWaiting:
				if sinceAudio() > chunkDuration {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
					continue
				}

			case silenceGeneratorStateSilence:
				if sinceAudio() < chunkDuration {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.sendSilence(chunk); err != nil {
					logger.Debug("failed to send silence", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if sinceAudio() < chunkDuration {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					if err := s.sendControl("KeepAlive"); err != nil {
						logger.Debug("failed to send keep alive", "error", err)
					}
				}
			}
		}
	}
}
