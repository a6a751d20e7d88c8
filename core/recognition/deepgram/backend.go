// Package deepgram recognizes speech over Deepgram's streaming listen
// websocket, feeding it microphone audio from an audio.Capturer.
package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/recognition"
)

const defaultModel = "nova-3"

type Backend struct {
	apiKey      string
	model       string
	encoding    audio.EncodingInfo
	endpoint    url.URL
	endpointing time.Duration
	dialer      *websocket.Dialer
	capturer    audio.Capturer
}

type Option func(*Backend)

func WithAPIKey(apiKey string) Option {
	return func(b *Backend) {
		b.apiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(b *Backend) {
		b.model = model
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) Option {
	return func(b *Backend) {
		if encodingInfo.IsZero() {
			logger.Warn("ignoring incomplete encoding info", "encoding", encodingInfo.Format.Name())
			return
		}
		b.encoding = encodingInfo
	}
}

// WithEndpoint replaces the listen websocket address.
func WithEndpoint(endpoint url.URL) Option {
	return func(b *Backend) {
		b.endpoint = endpoint
	}
}

// WithEndpointing sets how much silence ends an utterance.
func WithEndpointing(silence time.Duration) Option {
	return func(b *Backend) {
		if silence > 0 {
			b.endpointing = silence
		}
	}
}

// NewBackend creates a backend listening through capturer. The API key
// defaults to DEEPGRAM_API_KEY.
func NewBackend(capturer audio.Capturer, opts ...Option) *Backend {
	b := &Backend{
		apiKey:      os.Getenv("DEEPGRAM_API_KEY"),
		model:       defaultModel,
		encoding:    audio.GetDefaultEncodingInfo(),
		endpoint:    url.URL{Scheme: "wss", Host: "api.deepgram.com", Path: "/v1/listen"},
		endpointing: 300 * time.Millisecond,
		dialer:      websocket.DefaultDialer,
		capturer:    capturer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Start(ctx context.Context, config recognition.StartConfig, emit func(recognition.Event)) (recognition.Handle, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}
	if err := checkEncoding(b.encoding); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := b.connect(ctx, config)
	if err != nil {
		return nil, err
	}

	s := newStream(conn, b.encoding, config, emit)
	s.emit(recognition.Started{At: time.Now()})

	streamCtx := context.WithoutCancel(ctx)
	go s.readAndProcessMessages(streamCtx)

	if b.capturer != nil {
		s.capturer = b.capturer
		if err := b.capturer.StartCapture(streamCtx, func(audio []byte) {
			if err := s.SendAudio(audio); err != nil {
				logger.Debug("dropping captured audio", "error", err)
			}
		}); err != nil {
			_ = s.Stop(ctx)
			return nil, fmt.Errorf("failed to start capture: %w", err)
		}
	}

	return s, nil
}

func (b *Backend) connect(ctx context.Context, config recognition.StartConfig) (*websocket.Conn, error) {
	queryParams := url.Values{}
	queryParams.Set("encoding", b.encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(b.encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", b.model)
	if len(config.AutoDetect) > 0 {
		queryParams.Set("language", "multi")
	} else if config.Language != "" {
		queryParams.Set("language", config.Language)
	}
	queryParams.Set("smart_format", "true")
	queryParams.Set("punctuate", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("vad_events", "true")
	queryParams.Set("endpointing", strconv.FormatInt(b.endpointing.Milliseconds(), 10))

	// Nova-3 takes key terms, older models take keyword boosts.
	phraseParam := "keywords"
	if strings.HasPrefix(b.model, "nova-3") {
		phraseParam = "keyterm"
	}
	for _, phrase := range config.Phrases {
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			queryParams.Add(phraseParam, phrase)
		}
	}

	endpoint := b.endpoint
	endpoint.RawQuery = queryParams.Encode()

	conn, _, err := b.dialer.DialContext(ctx, endpoint.String(), http.Header{"Authorization": {"Token " + b.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}
