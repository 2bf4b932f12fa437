package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnectionState describes the transport lifecycle. Transitions are owned
// solely by the Transport; every other component only reads it.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// CredentialSource supplies the authentication credential for a connection
// attempt. Bearer token is preferred, falling back to a static API key,
// falling back to unauthenticated.
type CredentialSource interface {
	BearerToken() (string, bool)
	APIKey() (string, bool)
}

// TransportConfig holds configuration for the session connection.
type TransportConfig struct {
	// BaseURL is the ws:// or wss:// service address, without path.
	BaseURL string
	// ClientType tags the connection (e.g. "player", "host").
	ClientType string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendBufferSize   int
}

// DefaultTransportConfig returns default connection configuration.
func DefaultTransportConfig(baseURL string) TransportConfig {
	return TransportConfig{
		BaseURL:          baseURL,
		ClientType:       "player",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      90 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendBufferSize:   64,
	}
}

// link is one physical connection attempt. A fresh link is created per dial
// so that pump goroutines from a superseded connection can never act on the
// current one.
type link struct {
	id     string
	ws     *websocket.Conn
	sendCh chan []byte

	mu         sync.Mutex
	deliberate bool
	closed     bool
}

func (l *link) markDeliberate() {
	l.mu.Lock()
	l.deliberate = true
	l.mu.Unlock()
}

func (l *link) isDeliberate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deliberate
}

// closeOnce closes the underlying socket exactly once.
func (l *link) closeOnce() {
	l.mu.Lock()
	already := l.closed
	l.closed = true
	l.mu.Unlock()
	if !already {
		l.ws.Close()
	}
}

// Transport owns a single bidirectional session connection. It dials the
// session endpoint for one Identity, pumps frames both ways, surfaces every
// inbound envelope through the Router, and drives the heartbeat monitor and
// reconnect policy on open/close.
type Transport struct {
	config TransportConfig
	creds  CredentialSource
	router *Router
	clock  clockwork.Clock
	dialer *websocket.Dialer

	heartbeat *Heartbeat
	reconnect *ReconnectPolicy

	mu       sync.Mutex
	state    ConnectionState
	identity *Identity
	current  *link

	statusSubs []func(connected bool)
	errorSubs  []func(msg string)
}

// NewTransport creates a session transport. The router receives every
// inbound frame; the clock backs the heartbeat and reconnect timers.
func NewTransport(config TransportConfig, creds CredentialSource, router *Router, clock clockwork.Clock) *Transport {
	t := &Transport{
		config: config,
		creds:  creds,
		router: router,
		clock:  clock,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		state: StateDisconnected,
	}
	t.heartbeat = NewHeartbeat(t, clock, config.PingInterval)
	router.OnPong(t.heartbeat.HandlePong)
	t.reconnect = NewReconnectPolicy(clock, t.redial, t.onReconnectExhausted)
	return t
}

// OnStatusChange registers a connection-status subscriber.
func (t *Transport) OnStatusChange(fn func(connected bool)) {
	t.mu.Lock()
	t.statusSubs = append(t.statusSubs, fn)
	t.mu.Unlock()
}

// OnError registers a subscriber on the designated error channel. All
// user-facing failures arrive here as human-readable strings.
func (t *Transport) OnError(fn func(msg string)) {
	t.mu.Lock()
	t.errorSubs = append(t.errorSubs, fn)
	t.mu.Unlock()
}

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Heartbeat exposes the liveness monitor for diagnostics.
func (t *Transport) Heartbeat() *Heartbeat {
	return t.heartbeat
}

// Connect opens one connection scoped to the given identity. Identity
// validation happens before any network attempt. Connecting while already
// connected tears down the existing connection first; any pending reconnect
// timer is cancelled so duplicate connections cannot race.
func (t *Transport) Connect(identity Identity) error {
	if err := identity.Validate(); err != nil {
		t.reportError(fmt.Sprintf("cannot join session: %v", err))
		return fmt.Errorf("invalid session identity: %w", err)
	}

	t.reconnect.Cancel()
	t.teardown(true)

	t.mu.Lock()
	t.identity = &identity
	t.state = StateConnecting
	t.mu.Unlock()

	if err := t.dial(identity); err != nil {
		t.mu.Lock()
		t.state = StateDisconnected
		t.mu.Unlock()
		t.reportError("could not reach the game server")
		return err
	}
	return nil
}

// Disconnect performs a deliberate, user-initiated close. The normal-closure
// code distinguishes it from involuntary closes, so the reconnect policy
// never fires. The identity is dropped.
func (t *Transport) Disconnect() {
	t.reconnect.Cancel()
	t.teardown(true)

	t.mu.Lock()
	t.identity = nil
	t.setStateLocked(StateDisconnected)
	t.mu.Unlock()
}

// Send serializes and transmits one outbound envelope. It returns false
// without error when not currently connected; callers must treat false as
// "not delivered", not as a fatal condition.
func (t *Transport) Send(eventType EventType, data interface{}) bool {
	env, err := NewEnvelope(eventType, data, t.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to encode outbound event")
		return false
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return false
	}

	t.mu.Lock()
	l := t.current
	connected := t.state == StateConnected
	t.mu.Unlock()
	if !connected || l == nil {
		return false
	}

	select {
	case l.sendCh <- raw:
		return true
	default:
		log.Warn().
			Str("event_type", string(eventType)).
			Msg("send buffer full, dropping outbound event")
		return false
	}
}

// dial opens the socket and starts the pumps. Caller must have cleared any
// previous link.
func (t *Transport) dial(identity Identity) error {
	endpoint, err := t.sessionURL(identity)
	if err != nil {
		return fmt.Errorf("build session url: %w", err)
	}

	header := http.Header{}
	if token, ok := t.creds.BearerToken(); ok {
		header.Set("Authorization", "Bearer "+token)
	} else if key, ok := t.creds.APIKey(); ok {
		header.Set("X-API-Key", key)
	}

	ws, _, err := t.dialer.Dial(endpoint, header)
	if err != nil {
		return fmt.Errorf("dial session endpoint: %w", err)
	}

	l := &link{
		id:     uuid.New().String(),
		ws:     ws,
		sendCh: make(chan []byte, t.config.SendBufferSize),
	}

	t.mu.Lock()
	t.current = l
	t.setStateLocked(StateConnected)
	t.mu.Unlock()

	// A successful open resets the reconnect budget and restarts liveness.
	t.reconnect.Reset()
	t.heartbeat.Start()

	go t.writePump(l)
	go t.readPump(l)

	log.Info().
		Str("connection_id", l.id).
		Str("session_code", identity.SessionCode).
		Str("player_id", identity.PlayerID).
		Msg("session connection established")

	return nil
}

// sessionURL builds the endpoint address with connection parameters.
func (t *Transport) sessionURL(identity Identity) (string, error) {
	base := strings.TrimSuffix(t.config.BaseURL, "/")
	u, err := url.Parse(fmt.Sprintf("%s/ws/session/%s", base, identity.SessionCode))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_type", t.config.ClientType)
	q.Set("player_id", identity.PlayerID)
	q.Set("player_name", identity.PlayerName)
	if identity.PhotoURL != "" {
		q.Set("photo_url", identity.PhotoURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// teardown closes the current link, if any. When deliberate, the peer is
// told via the reserved normal-closure code.
func (t *Transport) teardown(deliberate bool) {
	t.mu.Lock()
	l := t.current
	t.current = nil
	t.mu.Unlock()
	if l == nil {
		return
	}

	if deliberate {
		l.markDeliberate()
		deadline := t.clock.Now().Add(t.config.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		if err := l.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Debug().Err(err).Str("connection_id", l.id).Msg("failed to write close frame")
		}
	}
	t.heartbeat.Stop()
	l.closeOnce()
}

// writePump sends queued outbound frames on the socket.
func (t *Transport) writePump(l *link) {
	defer l.closeOnce()

	for message := range l.sendCh {
		l.ws.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
		if err := l.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", l.id).
				Msg("failed to write session frame")
			return
		}
	}
}

// readPump reads inbound frames and dispatches them in arrival order.
func (t *Transport) readPump(l *link) {
	defer func() {
		l.closeOnce()
		close(l.sendCh)
	}()

	l.ws.SetReadLimit(t.config.MaxMessageSize)
	l.ws.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))

	for {
		_, message, err := l.ws.ReadMessage()
		if err != nil {
			t.handleClosed(l, err)
			return
		}
		l.ws.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))

		var env Envelope
		if unmarshalErr := json.Unmarshal(message, &env); unmarshalErr != nil {
			log.Warn().
				Err(unmarshalErr).
				Str("connection_id", l.id).
				Msg("dropping malformed session frame")
			continue
		}
		t.router.Dispatch(env)
	}
}

// handleClosed classifies a connection loss and, when involuntary, hands off
// to the reconnect policy. Pumps of superseded links are ignored.
func (t *Transport) handleClosed(l *link, err error) {
	t.mu.Lock()
	stale := t.current != l
	if !stale {
		t.current = nil
	}
	t.mu.Unlock()
	if stale {
		return
	}

	t.heartbeat.Stop()

	deliberate := l.isDeliberate() || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	if deliberate {
		t.mu.Lock()
		t.setStateLocked(StateDisconnected)
		t.mu.Unlock()
		log.Info().Str("connection_id", l.id).Msg("session connection closed")
		return
	}

	log.Warn().
		Err(err).
		Str("connection_id", l.id).
		Msg("session connection lost")

	t.mu.Lock()
	hasIdentity := t.identity != nil
	if hasIdentity {
		t.setStateLocked(StateReconnecting)
	} else {
		t.setStateLocked(StateDisconnected)
	}
	t.mu.Unlock()

	if hasIdentity {
		t.reconnect.Schedule()
	}
}

// redial is invoked by the reconnect policy when a backoff timer fires.
func (t *Transport) redial() {
	t.mu.Lock()
	identity := t.identity
	t.mu.Unlock()
	if identity == nil {
		// Disconnected deliberately while the timer was pending.
		return
	}

	if err := t.dial(*identity); err != nil {
		log.Warn().Err(err).Msg("reconnect attempt failed")
		t.mu.Lock()
		t.setStateLocked(StateReconnecting)
		t.mu.Unlock()
		t.reconnect.Schedule()
	}
}

func (t *Transport) onReconnectExhausted() {
	t.mu.Lock()
	t.setStateLocked(StateDisconnected)
	t.mu.Unlock()
	t.reportError("connection to the game was lost")
}

// setStateLocked updates the state and notifies status subscribers on
// connected/disconnected edges. Caller holds t.mu.
func (t *Transport) setStateLocked(next ConnectionState) {
	prev := t.state
	t.state = next

	wasConnected := prev == StateConnected
	isConnected := next == StateConnected
	if wasConnected == isConnected {
		return
	}
	subs := make([]func(bool), len(t.statusSubs))
	copy(subs, t.statusSubs)

	// Notify outside the lock.
	go func() {
		for _, fn := range subs {
			fn(isConnected)
		}
	}()
}

func (t *Transport) reportError(msg string) {
	t.mu.Lock()
	subs := make([]func(string), len(t.errorSubs))
	copy(subs, t.errorSubs)
	t.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}
