package orchestration

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/sequencer"
	"github.com/koscakluka/ema-voice/core/synthesis"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Turn is one exchange: the user's prompt and what the assistant answered.
type Turn struct {
	ID                 uuid.UUID
	UserText           string
	AssistantSentences []string
	// Spoken is what reached the user, which is less than the sentences
	// when the turn was fenced off
	Spoken    string
	StartedAt time.Time
	// Fenced is set when the turn was interrupted or superseded before its
	// response finished.
	Fenced bool
}

type turn struct {
	Turn

	started  bool
	finished bool
}

func (t *turn) snapshot() Turn {
	snapshot := t.Turn
	snapshot.AssistantSentences = slices.Clone(t.AssistantSentences)
	return snapshot
}

type outcome string

const (
	outcomeCompleted   outcome = "completed"
	outcomeInterrupted outcome = "interrupted"
	outcomeSkipped     outcome = "skipped"
	outcomeFailed      outcome = "failed"
)

// begin claims t for its response task. It fails if a newer prompt already
// superseded the turn.
func (o *Orchestrator) begin(t *turn) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t.finished {
		return false
	}
	t.started = true
	return true
}

func (o *Orchestrator) addSentence(t *turn, sentence string) {
	o.mu.Lock()
	t.AssistantSentences = append(t.AssistantSentences, sentence)
	o.mu.Unlock()
}

func (o *Orchestrator) finishTurn(ctx context.Context, t *turn, result outcome, spoken string) {
	o.mu.Lock()
	t.finished = true
	t.Spoken = spoken
	if result != outcomeCompleted {
		t.Fenced = true
	}
	o.mu.Unlock()

	if o.turnsCounter != nil {
		o.turnsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("turn.outcome", string(result))))
	}

	if result == outcomeCompleted {
		o.emit(events.NewTurnCompleted(events.Turn{TurnID: t.ID}, spoken))
	} else {
		o.emit(events.NewTurnInterrupted(events.Turn{TurnID: t.ID}, spoken))
	}
}

// respond streams the answer to the history, speaks it block by block and
// records whatever was said as the assistant's message.
func (o *Orchestrator) respond(ctx context.Context, t *turn) sequencer.Operation {
	return func(taskCtx context.Context) error {
		if !o.begin(t) {
			return nil
		}

		ctx, span := tracer.Start(ctx, "respond", trace.WithLinks(trace.LinkFromContext(taskCtx)))
		defer span.End()
		span.SetAttributes(attribute.String("turn.id", t.ID.String()))

		// Everything said in this turn is bound to one stamp so interrupts
		// during selection are not lost
		start := o.fence.Begin()
		history := o.Messages()
		style := o.style
		if o.toneSelector != nil {
			selected, err := o.toneSelector.Select(ctx, history)
			if err != nil {
				logger.Warn("failed to select tone, keeping default style", "error", err)
			}
			if selected != "" {
				style = selected
			}
			span.SetAttributes(attribute.String("turn.style", style))
		}
		if o.fence.Stale(start) {
			o.finishTurn(ctx, t, outcomeInterrupted, "")
			return nil
		}

		var (
			spoken    strings.Builder
			cut       bool
			speakErr  error
			turnEvent = events.Turn{TurnID: t.ID}
		)
		stream := o.streamer.StreamFrom(ctx, start, history)
		for block := range stream.Blocks() {
			for _, sentence := range block {
				o.addSentence(t, sentence)
				o.emit(events.NewAssistantSentence(turnEvent, sentence))
			}

			if o.synthesis == nil {
				appendSpoken(&spoken, strings.Join(block, " "), true)
				continue
			}

			req := o.speechRequest(ctx, block, history, style)
			if o.fence.Stale(start) {
				cut = true
				break
			}
			session := o.synthesis.SpeakFrom(ctx, start, req)
			first := true
			for word := range session.Words() {
				appendSpoken(&spoken, word.Text, first)
				first = false
				o.emit(events.NewAssistantWord(turnEvent, word))
			}

			completed, err := session.Result()
			if err != nil {
				speakErr = err
				break
			}
			if !completed {
				cut = true
				break
			}
		}

		content := strings.TrimSpace(spoken.String())
		if content != "" {
			_ = o.recordMessage(llms.NewAssistantMessage(content))(ctx)
		}

		err := errors.Join(stream.Err(), speakErr)
		switch {
		case err != nil:
			o.finishTurn(ctx, t, outcomeFailed, content)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		case cut || !stream.Completed():
			o.finishTurn(ctx, t, outcomeInterrupted, content)
		default:
			o.finishTurn(ctx, t, outcomeCompleted, content)
		}
		return nil
	}
}

func (o *Orchestrator) speechRequest(ctx context.Context, block []string, history []llms.Message, style string) synthesis.Request {
	req := synthesis.Request{Text: strings.Join(block, " "), Voice: o.voice, Style: style}
	if o.phraseSelector == nil {
		return req
	}

	phrases, err := o.phraseSelector.Select(ctx, block, history)
	if err != nil {
		logger.Warn("failed to select phrase prosody", "error", err)
	}
	if len(phrases) > 0 {
		req.Phrases = phrases
	}
	return req
}
