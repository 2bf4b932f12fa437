package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pingSender is what the heartbeat needs from the transport.
type pingSender interface {
	Send(eventType EventType, data interface{}) bool
}

// Heartbeat sends a fixed-interval application-level ping over the transport
// and estimates the server clock offset from each pong. It stops cleanly
// whenever the transport closes so no ticker outlives its connection.
type Heartbeat struct {
	sender   pingSender
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	stopCh    chan struct{}
	startedAt time.Time
	lastSent  time.Time
	lastPong  time.Time
	offset    time.Duration // serverTime - localTime
}

// NewHeartbeat creates a heartbeat monitor. Start/Stop are driven by the
// transport on open/close.
func NewHeartbeat(sender pingSender, clock clockwork.Clock, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		sender:   sender,
		clock:    clock,
		interval: interval,
	}
}

// Start begins the ping loop. Starting an already-running monitor is a
// no-op.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	h.stopCh = stopCh
	h.startedAt = h.clock.Now()
	h.lastPong = time.Time{}
	go h.run(stopCh)
}

// Stop cancels the ping loop. Safe to call when not running.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh == nil {
		return
	}
	close(h.stopCh)
	h.stopCh = nil
}

func (h *Heartbeat) run(stopCh chan struct{}) {
	h.ping()

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			h.ping()
		}
	}
}

// ping is fire-and-forget; a false return just means the connection went
// away and the transport will stop us shortly.
func (h *Heartbeat) ping() {
	h.mu.Lock()
	h.lastSent = h.clock.Now()
	h.mu.Unlock()
	h.sender.Send(EventPing, nil)
}

// HandlePong records a pong and updates the clock offset with a
// single-sample estimate: serverTime - localSendTime. Later measurements
// simply overwrite earlier ones.
func (h *Heartbeat) HandlePong(p PongPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastPong = h.clock.Now()
	if p.ServerTime != 0 && !h.lastSent.IsZero() {
		h.offset = time.UnixMilli(p.ServerTime).Sub(h.lastSent)
		log.Debug().
			Dur("clock_offset", h.offset).
			Msg("updated server clock offset")
	}
}

// Offset returns the current clock offset estimate (serverTime - localTime).
func (h *Heartbeat) Offset() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offset
}

// Liveness reports the time since the last pong and whether the connection
// still looks healthy. Purely observational; it never forces a reconnect.
func (h *Heartbeat) Liveness() (sinceLastPong time.Duration, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	reference := h.lastPong
	if reference.IsZero() {
		reference = h.startedAt
	}
	if reference.IsZero() {
		return 0, false
	}
	sinceLastPong = now.Sub(reference)
	healthy = h.stopCh != nil && sinceLastPong < 2*h.interval
	return sinceLastPong, healthy
}
