package session

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format for every frame in both directions.
type Envelope struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // unix millis
}

// EventType identifies a session event on the wire.
type EventType string

const (
	EventInitialState    EventType = "initial_state"
	EventQuestionStarted EventType = "question_started"
	EventPlayerJoined    EventType = "player_joined"
	EventPlayerLeft      EventType = "player_left"
	EventGameStarted     EventType = "game_started"
	EventGameEnded       EventType = "game_ended"
	EventAnswerSubmitted EventType = "answer_submitted"
	EventUIUpdate        EventType = "ui_update"
	EventBuzzerWinner    EventType = "buzzer_winner"
	EventCorrectAnswer   EventType = "correct_answer"
	EventIncorrectAnswer EventType = "incorrect_answer"
	EventQuestionEnded   EventType = "question_ended"
	EventPong            EventType = "pong"
	EventError           EventType = "error"
)

// Outbound event types.
const (
	EventPing            EventType = "ping"
	EventSubmitAnswer    EventType = "submit_answer"
	EventBuzzerPress     EventType = "buzzer_press"
	EventGetSessionStats EventType = "get_session_stats"
)

// QuestionPayload is the body of question_started and of the
// current_question part of initial_state. A payload missing both ID and
// Text is a notify-only ping: the server is telling us something changed
// without shipping the question itself.
type QuestionPayload struct {
	ID           string   `json:"question_id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index,omitempty"`
	StartAt      *int64   `json:"start_at,omitempty"` // unix millis, server clock
}

// IsNotifyOnly reports whether the payload carries no question body and is
// therefore a "go fetch" signal rather than a full question.
func (p QuestionPayload) IsNotifyOnly() bool {
	return p.ID == "" && p.Text == ""
}

// StartAtTime converts the server-issued start timestamp, if any.
func (p QuestionPayload) StartAtTime() (time.Time, bool) {
	if p.StartAt == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*p.StartAt), true
}

// AnswerResultPayload is the body of answer_submitted and of the
// correct_answer / incorrect_answer ui_update variants.
type AnswerResultPayload struct {
	QuestionID    string  `json:"question_id"`
	Answer        string  `json:"answer,omitempty"`
	Correct       *bool   `json:"correct,omitempty"`
	CorrectIndex  *int    `json:"correct_index,omitempty"`
	CorrectAnswer string  `json:"correct_answer,omitempty"`
	PlayerID      string  `json:"player_id,omitempty"`
	Score         float64 `json:"score,omitempty"`
}

// PlayerPayload is the body of player_joined / player_left.
type PlayerPayload struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	PhotoURL   string `json:"photo_url,omitempty"`
}

// GameStatePayload is the game_state part of initial_state and the body of
// game_started / game_ended.
type GameStatePayload struct {
	SessionCode string `json:"session_code"`
	Status      string `json:"status"`
	Mode        string `json:"mode,omitempty"` // trivia | buzzer
	PlayerCount int    `json:"player_count,omitempty"`
}

// BuzzerPayload is the body of buzzer_winner ui_update frames.
type BuzzerPayload struct {
	QuestionID string `json:"question_id"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
}

// PongPayload carries the server clock reading used for offset estimation.
type PongPayload struct {
	ServerTime int64 `json:"server_time"` // unix millis
}

// ErrorPayload is the body of server-sent error frames.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// InitialStatePayload fans out into up to two downstream dispatches: one for
// the game state, one for the current question.
type InitialStatePayload struct {
	GameState       *GameStatePayload `json:"game_state,omitempty"`
	CurrentQuestion *QuestionPayload  `json:"current_question,omitempty"`
}

// SubmitAnswerPayload is the outbound submit_answer body.
type SubmitAnswerPayload struct {
	Answer     string `json:"answer"`
	QuestionID string `json:"question_id"`
}

// NewEnvelope builds an outbound envelope with the current timestamp.
func NewEnvelope(eventType EventType, data interface{}, now time.Time) (Envelope, error) {
	env := Envelope{Type: eventType, Timestamp: now.UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = raw
	}
	return env, nil
}
