// Package events defines the typed events the orchestrator reports while a
// conversation runs.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - turn_state.*
//   - assistant_response.*
//   - assistant_speech.*
//   - user_input.*
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a turn was queued for a prompt.
//   - TurnInterrupted (turn_state.interrupted): the turn was fenced off
//     before its response was fully spoken.
//   - TurnCompleted (turn_state.completed): the whole response was spoken.
//
// assistant_response events
//
//   - AssistantSentence (assistant_response.sentence): a complete sentence
//     of the model's response, emitted in stream order before it is spoken.
//
// assistant_speech events
//
//   - AssistantWord (assistant_speech.word): a word reached in playback.
//
// user_input events
//
//   - UserUtterance (user_input.utterance): a finalized recognized
//     utterance, already trimmed to any soft interruption cutoff.
package events
