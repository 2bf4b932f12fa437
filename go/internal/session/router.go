package session

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Router decodes inbound envelopes into typed events and fans them out to
// registered subscribers. Dispatch is synchronous and strictly in frame
// arrival order; handlers must not block. Unknown event types are logged and
// dropped for protocol forward-compatibility, never surfaced as errors.
//
// Unlike a single callback field per event, every registration point keeps a
// subscriber list, so multiple consumers (UI, relay, recorder) can observe
// the same stream without overwriting each other.
type Router struct {
	mu sync.RWMutex

	gameState     []func(GameStatePayload)
	question      []func(QuestionPayload)
	playerJoined  []func(PlayerPayload)
	playerLeft    []func(PlayerPayload)
	gameStarted   []func(GameStatePayload)
	gameEnded     []func(GameStatePayload)
	answerResult  []func(AnswerResultPayload)
	buzzerWinner  []func(BuzzerPayload)
	questionEnded []func(questionID string)
	pong          []func(PongPayload)
	serverError   []func(ErrorPayload)

	// taps observe every raw envelope regardless of type.
	taps []func(Envelope)
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

func (r *Router) OnGameState(fn func(GameStatePayload)) {
	r.mu.Lock()
	r.gameState = append(r.gameState, fn)
	r.mu.Unlock()
}

func (r *Router) OnQuestion(fn func(QuestionPayload)) {
	r.mu.Lock()
	r.question = append(r.question, fn)
	r.mu.Unlock()
}

func (r *Router) OnPlayerJoined(fn func(PlayerPayload)) {
	r.mu.Lock()
	r.playerJoined = append(r.playerJoined, fn)
	r.mu.Unlock()
}

func (r *Router) OnPlayerLeft(fn func(PlayerPayload)) {
	r.mu.Lock()
	r.playerLeft = append(r.playerLeft, fn)
	r.mu.Unlock()
}

func (r *Router) OnGameStarted(fn func(GameStatePayload)) {
	r.mu.Lock()
	r.gameStarted = append(r.gameStarted, fn)
	r.mu.Unlock()
}

func (r *Router) OnGameEnded(fn func(GameStatePayload)) {
	r.mu.Lock()
	r.gameEnded = append(r.gameEnded, fn)
	r.mu.Unlock()
}

func (r *Router) OnAnswerResult(fn func(AnswerResultPayload)) {
	r.mu.Lock()
	r.answerResult = append(r.answerResult, fn)
	r.mu.Unlock()
}

func (r *Router) OnBuzzerWinner(fn func(BuzzerPayload)) {
	r.mu.Lock()
	r.buzzerWinner = append(r.buzzerWinner, fn)
	r.mu.Unlock()
}

func (r *Router) OnQuestionEnded(fn func(string)) {
	r.mu.Lock()
	r.questionEnded = append(r.questionEnded, fn)
	r.mu.Unlock()
}

func (r *Router) OnPong(fn func(PongPayload)) {
	r.mu.Lock()
	r.pong = append(r.pong, fn)
	r.mu.Unlock()
}

func (r *Router) OnServerError(fn func(ErrorPayload)) {
	r.mu.Lock()
	r.serverError = append(r.serverError, fn)
	r.mu.Unlock()
}

// Tap registers an observer for every inbound envelope.
func (r *Router) Tap(fn func(Envelope)) {
	r.mu.Lock()
	r.taps = append(r.taps, fn)
	r.mu.Unlock()
}

// Dispatch routes one inbound envelope. Malformed payloads are logged and
// the frame dropped; dispatch never returns an error to the transport.
func (r *Router) Dispatch(env Envelope) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, fn := range r.taps {
		fn(env)
	}

	switch env.Type {
	case EventInitialState:
		// One frame may synthesize up to two downstream calls.
		var payload InitialStatePayload
		if !r.decode(env, &payload) {
			return
		}
		if payload.GameState != nil {
			for _, fn := range r.gameState {
				fn(*payload.GameState)
			}
		}
		if payload.CurrentQuestion != nil {
			for _, fn := range r.question {
				fn(*payload.CurrentQuestion)
			}
		}

	case EventQuestionStarted:
		var payload QuestionPayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.question {
			fn(payload)
		}

	case EventPlayerJoined:
		var payload PlayerPayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.playerJoined {
			fn(payload)
		}

	case EventPlayerLeft:
		var payload PlayerPayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.playerLeft {
			fn(payload)
		}

	case EventGameStarted:
		var payload GameStatePayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.gameStarted {
			fn(payload)
		}

	case EventGameEnded:
		var payload GameStatePayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.gameEnded {
			fn(payload)
		}

	case EventAnswerSubmitted, EventCorrectAnswer, EventIncorrectAnswer:
		var payload AnswerResultPayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.answerResult {
			fn(payload)
		}

	case EventBuzzerWinner:
		var payload BuzzerPayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.buzzerWinner {
			fn(payload)
		}

	case EventQuestionEnded:
		var payload struct {
			QuestionID string `json:"question_id"`
		}
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.questionEnded {
			fn(payload.QuestionID)
		}

	case EventUIUpdate:
		r.dispatchUIUpdate(env)

	case EventPong:
		var payload PongPayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.pong {
			fn(payload)
		}

	case EventError:
		var payload ErrorPayload
		if !r.decode(env, &payload) {
			return
		}
		for _, fn := range r.serverError {
			fn(payload)
		}

	default:
		log.Debug().
			Str("event_type", string(env.Type)).
			Msg("dropping unknown event type")
	}
}

// dispatchUIUpdate unwraps a ui_update frame and re-dispatches its body
// under the nested update type.
func (r *Router) dispatchUIUpdate(env Envelope) {
	var header struct {
		UpdateType EventType `json:"update_type"`
	}
	if !r.decode(env, &header) {
		return
	}

	switch header.UpdateType {
	case EventBuzzerWinner, EventCorrectAnswer, EventIncorrectAnswer, EventQuestionEnded:
	default:
		log.Debug().
			Str("update_type", string(header.UpdateType)).
			Msg("dropping unknown ui_update variant")
		return
	}

	// Already holding the read lock; route through the inner switch directly.
	inner := Envelope{Type: header.UpdateType, Data: env.Data, Timestamp: env.Timestamp}
	switch inner.Type {
	case EventBuzzerWinner:
		var payload BuzzerPayload
		if !r.decode(inner, &payload) {
			return
		}
		for _, fn := range r.buzzerWinner {
			fn(payload)
		}
	case EventCorrectAnswer, EventIncorrectAnswer:
		var payload AnswerResultPayload
		if !r.decode(inner, &payload) {
			return
		}
		for _, fn := range r.answerResult {
			fn(payload)
		}
	case EventQuestionEnded:
		var payload struct {
			QuestionID string `json:"question_id"`
		}
		if !r.decode(inner, &payload) {
			return
		}
		for _, fn := range r.questionEnded {
			fn(payload.QuestionID)
		}
	}
}

func (r *Router) decode(env Envelope, v interface{}) bool {
	if len(env.Data) == 0 {
		// Empty payloads are legal for several event types; decode into the
		// zero value.
		return true
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		log.Warn().
			Err(err).
			Str("event_type", string(env.Type)).
			Msg("dropping malformed event payload")
		return false
	}
	return true
}
