// Package deepgram synthesizes speech over Deepgram's streaming speak
// websocket. Deepgram reports no word timing, so boundaries are estimated by
// spreading each flushed phrase's audio over its words.
package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/ssml"
	"github.com/koscakluka/ema-voice/core/synthesis"
)

type Voice string

const (
	VoiceThalia    Voice = "aura-2-thalia-en"
	VoiceAndromeda Voice = "aura-2-andromeda-en"
	VoiceApollo    Voice = "aura-2-apollo-en"
	VoiceArcas     Voice = "aura-2-arcas-en"
	VoiceHelena    Voice = "aura-2-helena-en"
	VoiceOrion     Voice = "aura-2-orion-en"

	defaultVoice = VoiceThalia
)

type Backend struct {
	apiKey   string
	voice    Voice
	encoding audio.EncodingInfo
	endpoint url.URL
	dialer   *websocket.Dialer
	player   audio.Player
}

type Option func(*Backend)

func WithAPIKey(apiKey string) Option {
	return func(b *Backend) {
		b.apiKey = apiKey
	}
}

func WithVoice(voice Voice) Option {
	return func(b *Backend) {
		b.voice = voice
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

// WithEndpoint replaces the speak websocket address.
func WithEndpoint(endpoint url.URL) Option {
	return func(b *Backend) {
		b.endpoint = endpoint
	}
}

// NewBackend creates a backend playing through player. The API key defaults
// to DEEPGRAM_API_KEY.
func NewBackend(player audio.Player, opts ...Option) *Backend {
	b := &Backend{
		apiKey:   os.Getenv("DEEPGRAM_API_KEY"),
		voice:    defaultVoice,
		encoding: audio.GetDefaultEncodingInfo(),
		endpoint: url.URL{Scheme: "wss", Host: "api.deepgram.com", Path: "/v1/speak"},
		dialer:   websocket.DefaultDialer,
		player:   player,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Dialect() ssml.Dialect {
	return ssml.DialectPlain
}

func (b *Backend) Synthesize(ctx context.Context, text string, emit func(synthesis.Event)) (synthesis.Handle, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	r := newStreamingRequest(conn, b.player, b.encoding, emit)
	go r.processIncomingMessages(context.WithoutCancel(ctx))

	if err := r.start(text); err != nil {
		_ = r.Stop(ctx)
		return nil, err
	}
	return r, nil
}

func (b *Backend) connect(ctx context.Context) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", b.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(b.encoding.SampleRate))
	urlValues.Set("model", string(b.voice))
	urlValues.Set("container", "none")

	endpoint := b.endpoint
	endpoint.RawQuery = urlValues.Encode()

	conn, _, err := b.dialer.DialContext(ctx, endpoint.String(), http.Header{"Authorization": {"token " + b.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}
