package session_api_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

type SessionStatus struct {
	SessionCode string `json:"session_code"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	PlayerCount int    `json:"player_count"`
}

type CurrentQuestion struct {
	QuestionID   string   `json:"question_id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index,omitempty"`
	StartAt      *int64   `json:"start_at,omitempty"`
}

type SubmitAnswerRequest struct {
	PlayerID   string `json:"player_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

type SubmitAnswerResponse struct {
	Accepted bool  `json:"accepted"`
	Correct  *bool `json:"correct,omitempty"`
}

type SessionStats struct {
	SessionCode   string         `json:"session_code"`
	QuestionCount int            `json:"question_count"`
	Scores        map[string]int `json:"scores"`
}

func (c *SessionApiClient) GetSessionStatus(ctx context.Context, sessionCode string) (*SessionStatus, error) {
	body, err := c.Get(ctx, fmt.Sprintf(SessionStatusEndpoint, sessionCode))
	if err != nil {
		return nil, fmt.Errorf("failed to get session status: %w", err)
	}

	var status SessionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return &status, nil
}

// GetCurrentQuestion returns the authoritative current question, or nil when
// no question is active.
func (c *SessionApiClient) GetCurrentQuestion(ctx context.Context, sessionCode string) (*CurrentQuestion, error) {
	body, err := c.Get(ctx, fmt.Sprintf(CurrentQuestionEndpoint, sessionCode))
	if err != nil {
		return nil, fmt.Errorf("failed to get current question: %w", err)
	}

	var question CurrentQuestion
	if err := json.Unmarshal(body, &question); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if question.QuestionID == "" {
		return nil, nil
	}
	return &question, nil
}

func (c *SessionApiClient) SubmitAnswer(ctx context.Context, sessionCode string, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.Post(ctx, fmt.Sprintf(SubmitAnswerEndpoint, sessionCode), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to submit answer: %w", err)
	}

	var resp SubmitAnswerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return &resp, nil
}

func (c *SessionApiClient) GetSessionStats(ctx context.Context, sessionCode string) (*SessionStats, error) {
	body, err := c.Get(ctx, fmt.Sprintf(SessionStatsEndpoint, sessionCode))
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}

	var stats SessionStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return &stats, nil
}
