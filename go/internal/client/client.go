package client

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlink/go/clients/session_api_client"
	"github.com/mcdev12/quizlink/go/internal/game"
	"github.com/mcdev12/quizlink/go/internal/session"
)

// Client is the composed session client: transport, heartbeat, reconnect
// policy, event router, and game-state reconciler behind one lifecycle. It
// is an explicit, dependency-injected instance; whoever composes the
// application owns it. There is no package-level connection.
type Client struct {
	transport  *session.Transport
	router     *session.Router
	reconciler *game.Reconciler
	api        *session_api_client.SessionApiClient
	clock      clockwork.Clock

	mu       sync.Mutex
	identity *session.Identity

	errorSubs []func(msg string)
}

// New wires a session client from its collaborators. The credential source
// authenticates both the realtime connection and the query fallback.
func New(transportConfig session.TransportConfig, creds session.CredentialSource, api *session_api_client.SessionApiClient, clock clockwork.Clock) *Client {
	c := &Client{
		router: session.NewRouter(),
		api:    api,
		clock:  clock,
	}
	c.transport = session.NewTransport(transportConfig, creds, c.router, clock)
	c.reconciler = game.NewReconciler(
		clock,
		c.transport.Heartbeat().Offset,
		&realtimeSender{c},
		&queryAdapter{c},
		c.emitError,
	)

	c.router.OnQuestion(c.reconciler.HandleQuestion)
	c.router.OnAnswerResult(c.reconciler.HandleAnswerResult)
	c.router.OnQuestionEnded(c.reconciler.HandleQuestionEnded)
	c.router.OnGameEnded(func(session.GameStatePayload) { c.reconciler.HandleGameEnded() })
	c.router.OnServerError(func(p session.ErrorPayload) { c.emitError(p.Message) })
	c.transport.OnError(c.emitError)

	return c
}

// Connect joins the session described by the identity. Validation failures
// surface before any network attempt.
func (c *Client) Connect(identity session.Identity) error {
	c.mu.Lock()
	c.identity = &identity
	c.mu.Unlock()
	return c.transport.Connect(identity)
}

// Disconnect leaves the session deliberately; no reconnect will follow.
func (c *Client) Disconnect() {
	c.transport.Disconnect()
	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()
}

// ConnectionState reports the transport state.
func (c *Client) ConnectionState() session.ConnectionState {
	return c.transport.State()
}

// Liveness reports time since the last heartbeat pong and a health flag.
func (c *Client) Liveness() (time.Duration, bool) {
	return c.transport.Heartbeat().Liveness()
}

// Snapshot returns a copy of the reconciled game state.
func (c *Client) Snapshot() game.Snapshot {
	return c.reconciler.Snapshot()
}

// SelectAnswer marks one answer option selected. No-op after submission or
// once results are visible.
func (c *Client) SelectAnswer(index int) {
	c.reconciler.SelectAnswer(index)
}

// SubmitAnswer submits the current selection, realtime first with a single
// query fallback.
func (c *Client) SubmitAnswer(ctx context.Context) error {
	return c.reconciler.SubmitAnswer(ctx)
}

// PressBuzzer fires a buzzer press for the active question.
func (c *Client) PressBuzzer() {
	snapshot := c.reconciler.Snapshot()
	questionID := ""
	if snapshot.Question != nil {
		questionID = snapshot.Question.ID
	}
	if !c.transport.Send(session.EventBuzzerPress, map[string]string{"question_id": questionID}) {
		log.Warn().Msg("buzzer press not delivered")
	}
}

// RequestSessionStats asks the server to push session stats.
func (c *Client) RequestSessionStats() {
	if !c.transport.Send(session.EventGetSessionStats, nil) {
		log.Warn().Msg("session stats request not delivered")
	}
}

// Router exposes event registration for additional consumers (UI bindings,
// relay, recorder).
func (c *Client) Router() *session.Router {
	return c.router
}

// OnConnectionStatus registers a connection-status subscriber.
func (c *Client) OnConnectionStatus(fn func(connected bool)) {
	c.transport.OnStatusChange(fn)
}

// OnStateUpdate registers a reconciled-snapshot subscriber.
func (c *Client) OnStateUpdate(fn func(game.Snapshot)) {
	c.reconciler.OnUpdate(fn)
}

// OnError registers a subscriber on the designated error channel. Every
// user-facing failure in the client arrives here as a human-readable
// string; nothing panics across this boundary.
func (c *Client) OnError(fn func(msg string)) {
	c.mu.Lock()
	c.errorSubs = append(c.errorSubs, fn)
	c.mu.Unlock()
}

func (c *Client) emitError(msg string) {
	c.mu.Lock()
	subs := make([]func(string), len(c.errorSubs))
	copy(subs, c.errorSubs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

func (c *Client) currentIdentity() (session.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return session.Identity{}, false
	}
	return *c.identity, true
}

// realtimeSender adapts the transport to the reconciler's low-latency
// submission path.
type realtimeSender struct {
	c *Client
}

func (s *realtimeSender) SubmitAnswer(questionID, answer string) bool {
	return s.c.transport.Send(session.EventSubmitAnswer, session.SubmitAnswerPayload{
		Answer:     answer,
		QuestionID: questionID,
	})
}

// queryAdapter adapts the REST client to the reconciler's fallback
// interface.
type queryAdapter struct {
	c *Client
}

func (a *queryAdapter) CurrentQuestion(ctx context.Context) (*game.Question, error) {
	identity, ok := a.c.currentIdentity()
	if !ok {
		return nil, nil
	}
	current, err := a.c.api.GetCurrentQuestion(ctx, identity.SessionCode)
	if err != nil || current == nil {
		return nil, err
	}

	q := &game.Question{
		ID:      current.QuestionID,
		Text:    current.Text,
		Options: append([]string(nil), current.Options...),
	}
	if current.CorrectIndex != nil {
		idx := *current.CorrectIndex
		q.CorrectIndex = &idx
	}
	if current.StartAt != nil {
		at := time.UnixMilli(*current.StartAt)
		q.StartAt = &at
	}
	return q, nil
}

func (a *queryAdapter) SubmitAnswer(ctx context.Context, questionID, answer string) error {
	identity, ok := a.c.currentIdentity()
	if !ok {
		return nil
	}
	_, err := a.c.api.SubmitAnswer(ctx, identity.SessionCode, session_api_client.SubmitAnswerRequest{
		PlayerID:   identity.PlayerID,
		QuestionID: questionID,
		Answer:     answer,
	})
	return err
}
