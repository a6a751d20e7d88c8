// Package polly synthesizes speech with Amazon Polly. Word timing comes from
// Polly speech marks requested alongside the audio.
package polly

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/ssml"
	"github.com/koscakluka/ema-voice/core/synthesis"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// chunkSize is how much PCM is handed to the player at once, 100ms at 16kHz.
const chunkSize = 3200

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Config struct {
	Region     string
	VoiceID    string
	Engine     string
	SampleRate int
}

func ConfigFromEnv() Config {
	return Config{
		Region:     defaultString(os.Getenv("EMA_POLLY_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		VoiceID:    defaultString(os.Getenv("EMA_POLLY_VOICE"), "Joanna"),
		Engine:     defaultString(os.Getenv("EMA_POLLY_ENGINE"), "neural"),
		SampleRate: audio.DefaultSampleRate,
	}
}

type Backend struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
	player audio.Player
}

func NewBackend(cfg Config, player audio.Player) *Backend {
	return NewBackendWithClient(cfg, player, nil)
}

func NewBackendWithClient(cfg Config, player audio.Player, client synthClient) *Backend {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	return &Backend{client: client, cfg: cfg, player: player}
}

func (b *Backend) Dialect() ssml.Dialect {
	return ssml.DialectPolly
}

// Synthesize requests speech marks and PCM audio for markup, then plays the
// audio and replays the marks as word boundaries.
func (b *Backend) Synthesize(ctx context.Context, markup string, emit func(synthesis.Event)) (synthesis.Handle, error) {
	client, err := b.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &handle{cancel: cancel, player: b.player, emit: emit}
	go b.run(ctx, client, markup, h)

	return h, nil
}

func (b *Backend) run(ctx context.Context, client synthClient, markup string, h *handle) {
	ctx, span := tracer.Start(ctx, "polly synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.voice", b.cfg.VoiceID),
		attribute.String("request.engine", b.cfg.Engine),
	)

	fail := func(err error) {
		err = normalizePollyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.send(synthesis.SessionCanceled{Err: err})
		h.finish()
	}

	marks, err := b.speechMarks(ctx, client, markup)
	if err != nil {
		fail(fmt.Errorf("speech marks: %w", err))
		return
	}

	pcm, err := b.audio(ctx, client, markup)
	if err != nil {
		fail(fmt.Errorf("audio: %w", err))
		return
	}
	span.SetAttributes(attribute.Int("response.marks", len(marks)), attribute.Int("response.audio_bytes", len(pcm)))

	encoding := audio.EncodingInfo{SampleRate: b.cfg.SampleRate, Format: audio.EncodingLinear16}
	total := encoding.Duration(len(pcm))

	for i := 0; i < len(pcm); i += chunkSize {
		if ctx.Err() != nil {
			return
		}
		end := min(i+chunkSize, len(pcm))
		if err := b.player.SendAudio(pcm[i:end]); err != nil {
			fail(fmt.Errorf("playback: %w", err))
			return
		}
		if i == 0 {
			h.send(synthesis.SessionStarted{At: time.Now()})
		}
	}
	if len(pcm) == 0 {
		h.send(synthesis.SessionStarted{At: time.Now()})
	}

	for _, event := range boundaries(marks, total) {
		h.send(event)
	}

	if err := b.player.Mark("polly", func(string) {
		h.send(synthesis.SessionCompleted{})
		h.finish()
	}); err != nil {
		fail(fmt.Errorf("playback mark: %w", err))
	}
}

func (b *Backend) speechMarks(ctx context.Context, client synthClient, markup string) ([]speechMark, error) {
	output, err := client.SynthesizeSpeech(ctx, b.input(markup, pollytypes.OutputFormatJson))
	if err != nil {
		return nil, err
	}
	if output == nil || output.AudioStream == nil {
		return nil, fmt.Errorf("empty speech marks stream")
	}
	defer output.AudioStream.Close()

	var marks []speechMark
	scanner := bufio.NewScanner(output.AudioStream)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var mark speechMark
		if err := json.Unmarshal([]byte(line), &mark); err != nil {
			return nil, fmt.Errorf("decode speech mark: %w", err)
		}
		if mark.Type == "word" {
			marks = append(marks, mark)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read speech marks: %w", err)
	}
	return marks, nil
}

func (b *Backend) audio(ctx context.Context, client synthClient, markup string) ([]byte, error) {
	output, err := client.SynthesizeSpeech(ctx, b.input(markup, pollytypes.OutputFormatPcm))
	if err != nil {
		return nil, err
	}
	if output == nil || output.AudioStream == nil {
		return nil, fmt.Errorf("empty audio stream")
	}
	defer output.AudioStream.Close()
	return io.ReadAll(output.AudioStream)
}

func (b *Backend) input(markup string, format pollytypes.OutputFormat) *polly.SynthesizeSpeechInput {
	engine := pollytypes.EngineStandard
	if strings.EqualFold(b.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	textType := pollytypes.TextTypeText
	if strings.HasPrefix(strings.TrimSpace(markup), "<speak") {
		textType = pollytypes.TextTypeSsml
	}

	input := &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: format,
		Text:         aws.String(markup),
		TextType:     textType,
		VoiceId:      pollytypes.VoiceId(b.cfg.VoiceID),
	}
	if format == pollytypes.OutputFormatJson {
		input.SpeechMarkTypes = []pollytypes.SpeechMarkType{pollytypes.SpeechMarkTypeWord}
	} else {
		input.SampleRate = aws.String(strconv.Itoa(b.cfg.SampleRate))
	}
	return input
}

// speechMark is a single line of Polly's speech mark output. Time is in
// milliseconds, Start and End are byte offsets into the input text.
type speechMark struct {
	Time  int    `json:"time"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Value string `json:"value"`
}

// boundaries turns speech marks into word boundaries. A word lasts until the
// next word starts, the last one until the audio ends.
func boundaries(marks []speechMark, total time.Duration) []synthesis.Event {
	events := make([]synthesis.Event, 0, len(marks))
	for i, mark := range marks {
		offset := time.Duration(mark.Time) * time.Millisecond
		end := total
		if i+1 < len(marks) {
			end = time.Duration(marks[i+1].Time) * time.Millisecond
		}
		length := mark.End - mark.Start
		if length <= 0 {
			length = len(mark.Value)
		}
		events = append(events, synthesis.WordBoundary{
			Text:        mark.Value,
			AudioOffset: offset,
			Duration:    max(end-offset, 0),
			WordLength:  length,
		})
	}
	return events
}

func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("polly %s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
	return err
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (b *Backend) resolveClient(ctx context.Context) (synthClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	b.client = polly.NewFromConfig(awsCfg)
	return b.client, nil
}

type handle struct {
	cancel context.CancelFunc
	player audio.Player
	emit   func(synthesis.Event)

	mu   sync.Mutex
	done bool
}

func (h *handle) send(event synthesis.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done {
		h.emit(event)
	}
}

func (h *handle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
}

func (h *handle) Stop(context.Context) error {
	h.finish()
	h.cancel()
	h.player.ClearBuffer()
	return nil
}
