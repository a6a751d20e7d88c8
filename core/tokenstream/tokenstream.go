// Package tokenstream turns a streamed LLM response into complete sentences.
package tokenstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-voice/core/fence"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/sentences"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultRetryLimit   = 3
	DefaultRetryBackoff = 250 * time.Millisecond
)

type Streamer struct {
	llm   llms.StreamingLLM
	fence *fence.Fence

	retryLimit   int
	retryBackoff time.Duration
	promptOpts   []llms.PromptOption

	retryCounter metric.Int64Counter
}

type Option func(*Streamer)

// WithRetryLimit sets how many times a request failing with a transient
// error, before any content arrived, is repeated.
func WithRetryLimit(limit int) Option {
	return func(s *Streamer) {
		s.retryLimit = limit
	}
}

func WithRetryBackoff(backoff time.Duration) Option {
	return func(s *Streamer) {
		s.retryBackoff = backoff
	}
}

// WithPromptOptions sets options passed to every request.
func WithPromptOptions(opts ...llms.PromptOption) Option {
	return func(s *Streamer) {
		s.promptOpts = append(s.promptOpts, opts...)
	}
}

func New(llm llms.StreamingLLM, f *fence.Fence, opts ...Option) *Streamer {
	s := &Streamer{
		llm:          llm,
		fence:        f,
		retryLimit:   DefaultRetryLimit,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}

	retryCounter, err := meter.Int64Counter("tokenstream.retries",
		metric.WithDescription("LLM requests repeated after a transient error"))
	if err != nil {
		logger.Error("failed to create retry counter", "error", err)
	}
	s.retryCounter = retryCounter

	return s
}

// Stream prepares a sentence stream over the response to messages. The
// request is sent once Blocks is ranged over and the stream is bound to the
// fence state at the time of this call.
func (s *Streamer) Stream(ctx context.Context, messages []llms.Message, opts ...llms.PromptOption) *SentenceStream {
	return s.StreamFrom(ctx, s.fence.Begin(), messages, opts...)
}

// StreamFrom is Stream bound to a fence stamp taken earlier with Begin.
// Interrupts since that stamp silence the stream.
func (s *Streamer) StreamFrom(ctx context.Context, start int64, messages []llms.Message, opts ...llms.PromptOption) *SentenceStream {
	return &SentenceStream{
		ctx:      ctx,
		streamer: s,
		messages: messages,
		opts:     append(append([]llms.PromptOption{}, s.promptOpts...), opts...),
		start:    start,
	}
}

// SentenceStream is a single use sequence of sentence blocks.
type SentenceStream struct {
	ctx      context.Context
	streamer *Streamer
	messages []llms.Message
	opts     []llms.PromptOption
	start    int64

	mu        sync.Mutex
	completed bool
	err       error
	sentences []string
}

// Blocks yields groups of trimmed sentences as soon as they are known to be
// complete. The remainder is flushed as a final block when the response
// ends. Nothing more is yielded once the fence moves past the stream's start.
func (ss *SentenceStream) Blocks() func(func([]string) bool) {
	return func(yield func([]string) bool) {
		ctx, span := tracer.Start(ss.ctx, "stream sentences")
		defer span.End()

		completed, err := ss.run(ctx, yield)

		ss.mu.Lock()
		ss.completed = completed
		ss.err = err
		sentenceCount := len(ss.sentences)
		ss.mu.Unlock()

		span.SetAttributes(
			attribute.Bool("stream.completed", completed),
			attribute.Int("stream.sentences", sentenceCount),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}

func (ss *SentenceStream) run(ctx context.Context, yield func([]string) bool) (bool, error) {
	s := ss.streamer
	var buffer strings.Builder
	emit := func(block []string) bool {
		if s.fence.Stale(ss.start) {
			return false
		}
		ss.mu.Lock()
		ss.sentences = append(ss.sentences, block...)
		ss.mu.Unlock()
		return yield(block)
	}

	if s.fence.Stale(ss.start) {
		return false, nil
	}

	for attempt := 0; ; attempt++ {
		received := false
		var streamErr error

		for chunk, err := range s.llm.PromptWithStream(ctx, ss.messages, ss.opts...).Chunks(ctx) {
			if s.fence.Stale(ss.start) {
				return false, nil
			}
			if err != nil {
				streamErr = err
				break
			}

			content, ok := chunk.(llms.StreamContentChunk)
			if !ok || content.Content() == "" {
				continue
			}
			received = true
			buffer.WriteString(content.Content())

			segments := sentences.Segment(buffer.String())
			if len(segments) <= 1 {
				continue
			}

			block := trimAll(segments[:len(segments)-1])
			buffer.Reset()
			buffer.WriteString(segments[len(segments)-1])
			if len(block) > 0 && !emit(block) {
				return false, nil
			}
		}

		if streamErr == nil {
			break
		}
		if received || attempt >= s.retryLimit || !llms.IsTransient(streamErr) {
			return false, fmt.Errorf("llm stream failed after %d attempts: %w", attempt+1, streamErr)
		}

		logger.Warn("retrying llm stream", "attempt", attempt+1, "error", streamErr)
		if s.retryCounter != nil {
			s.retryCounter.Add(ctx, 1)
		}
		if !ss.backoff(ctx) {
			return false, ctx.Err()
		}
	}

	if s.fence.Stale(ss.start) {
		return false, nil
	}
	if remainder := trimAll(sentences.Segment(buffer.String())); len(remainder) > 0 {
		if !emit(remainder) {
			return false, nil
		}
	}

	return true, nil
}

// backoff waits out the retry delay. It returns false when the wait was cut
// short by the context or by an interruption.
func (ss *SentenceStream) backoff(ctx context.Context) bool {
	timer := time.NewTimer(ss.streamer.retryBackoff)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return !ss.streamer.fence.Stale(ss.start)
		case <-ss.streamer.fence.Changed():
			if ss.streamer.fence.Stale(ss.start) {
				return false
			}
		}
	}
}

// Completed reports whether the whole response was yielded.
func (ss *SentenceStream) Completed() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.completed
}

// Err returns the error that ended the stream, if any.
func (ss *SentenceStream) Err() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.err
}

// Sentences returns every sentence yielded so far.
func (ss *SentenceStream) Sentences() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return append([]string(nil), ss.sentences...)
}

func trimAll(segments []string) []string {
	trimmed := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment = strings.TrimSpace(segment); segment != "" {
			trimmed = append(trimmed, segment)
		}
	}
	return trimmed
}
