package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/quizlink/go/internal/session"
)

// Event is one recorded session event.
type Event struct {
	ID          uuid.UUID
	SessionCode string
	EventType   string
	Payload     []byte
	EventTime   time.Time
	RecordedAt  time.Time
}

// Answer is one recorded answer submission.
type Answer struct {
	ID          uuid.UUID
	SessionCode string
	PlayerID    string
	QuestionID  string
	Answer      string
	Correct     *bool
	RecordedAt  time.Time
}

// Repository persists session history to Postgres for post-game review.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository over a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordEvent inserts one inbound envelope.
func (r *Repository) RecordEvent(ctx context.Context, sessionCode string, env session.Envelope) error {
	eventTime := time.UnixMilli(env.Timestamp)
	if env.Timestamp == 0 {
		eventTime = time.Now()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (id, session_code, event_type, payload, event_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), sessionCode, string(env.Type), []byte(env.Data), eventTime,
	)
	if err != nil {
		return fmt.Errorf("failed to record session event: %w", err)
	}
	return nil
}

// RecordAnswer inserts one answer submission with its verdict, when known.
func (r *Repository) RecordAnswer(ctx context.Context, a Answer) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_answers (id, session_code, player_id, question_id, answer, correct)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.SessionCode, a.PlayerID, a.QuestionID, a.Answer, a.Correct,
	)
	if err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events for a session, newest first.
func (r *Repository) ListEvents(ctx context.Context, sessionCode string, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_code, event_type, payload, event_time, recorded_at
		 FROM session_events
		 WHERE session_code = $1
		 ORDER BY event_time DESC
		 LIMIT $2`,
		sessionCode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionCode, &e.EventType, &e.Payload, &e.EventTime, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
