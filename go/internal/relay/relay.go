package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlink/go/internal/session"
)

// Publisher is what the relay needs from the message bus. *nats.Conn
// satisfies it directly.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds relay configuration.
type Config struct {
	// SubjectPrefix is prepended to every published subject:
	// <prefix>.<session_code>.<event_type>
	SubjectPrefix string
}

// DefaultConfig returns default relay configuration.
func DefaultConfig() Config {
	return Config{
		SubjectPrefix: "quizlink.session",
	}
}

// Relay republishes every inbound session event onto the message bus so
// side-channel consumers (stream overlays, spectator dashboards, recorders
// on other hosts) can observe the game without their own session
// connection. Publishing never blocks event dispatch; a failed publish is
// logged and dropped.
type Relay struct {
	publisher Publisher
	config    Config
	clock     clockwork.Clock

	mu          sync.Mutex
	sessionCode string
	relayed     uint64
	dropped     uint64
	lastEvent   time.Time
}

// New creates a relay over the given publisher.
func New(publisher Publisher, config Config, clock clockwork.Clock) *Relay {
	return &Relay{
		publisher: publisher,
		config:    config,
		clock:     clock,
	}
}

// Attach taps the router's event stream for one session.
func (r *Relay) Attach(router *session.Router, sessionCode string) {
	r.mu.Lock()
	r.sessionCode = sessionCode
	r.mu.Unlock()
	router.Tap(r.handle)
}

func (r *Relay) handle(env session.Envelope) {
	r.mu.Lock()
	code := r.sessionCode
	r.mu.Unlock()

	subject := fmt.Sprintf("%s.%s.%s", r.config.SubjectPrefix, code, env.Type)
	data, err := json.Marshal(env)
	if err != nil {
		r.recordDrop()
		log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("failed to marshal relay event")
		return
	}

	if err := r.publisher.Publish(subject, data); err != nil {
		r.recordDrop()
		log.Warn().
			Err(err).
			Str("subject", subject).
			Msg("failed to relay session event")
		return
	}

	r.mu.Lock()
	r.relayed++
	r.lastEvent = r.clock.Now()
	r.mu.Unlock()

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(env.Type)).
		Msg("session event relayed")
}

func (r *Relay) recordDrop() {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
}

// Stats returns relayed/dropped counts and the last relayed event time.
func (r *Relay) Stats() (relayed, dropped uint64, lastEvent time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relayed, r.dropped, r.lastEvent
}
