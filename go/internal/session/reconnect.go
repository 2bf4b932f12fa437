package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = time.Second
	reconnectMaxDelay    = 30 * time.Second
)

// ReconnectPolicy schedules bounded exponential backoff retries after an
// involuntary connection loss. At most one retry timer is pending at a time;
// the attempt counter resets to zero on a successful open. After the attempt
// ceiling the policy goes quiet and a manual Connect starts a fresh budget.
type ReconnectPolicy struct {
	clock       clockwork.Clock
	retry       func()
	onExhausted func()

	mu       sync.Mutex
	attempts int
	pending  bool
	timer    clockwork.Timer
	cancelCh chan struct{}
}

// NewReconnectPolicy creates a policy that invokes retry when a backoff
// timer fires and onExhausted once the attempt ceiling is hit.
func NewReconnectPolicy(clock clockwork.Clock, retry func(), onExhausted func()) *ReconnectPolicy {
	return &ReconnectPolicy{
		clock:       clock,
		retry:       retry,
		onExhausted: onExhausted,
	}
}

// backoffDelay returns min(1s << attempt, 30s).
func backoffDelay(attempt int) time.Duration {
	delay := reconnectBaseDelay << uint(attempt)
	if delay > reconnectMaxDelay || delay <= 0 {
		return reconnectMaxDelay
	}
	return delay
}

// Schedule queues one retry after the current backoff delay. A no-op while a
// retry is already pending. Past the attempt ceiling it fires onExhausted
// instead.
func (p *ReconnectPolicy) Schedule() {
	p.mu.Lock()
	if p.pending {
		p.mu.Unlock()
		return
	}
	if p.attempts >= maxReconnectAttempts {
		p.mu.Unlock()
		log.Warn().
			Int("attempts", maxReconnectAttempts).
			Msg("reconnect attempts exhausted")
		if p.onExhausted != nil {
			p.onExhausted()
		}
		return
	}

	delay := backoffDelay(p.attempts)
	p.attempts++
	p.pending = true
	timer := p.clock.NewTimer(delay)
	cancelCh := make(chan struct{})
	p.timer = timer
	p.cancelCh = cancelCh
	p.mu.Unlock()

	log.Info().
		Int("attempt", p.attempts).
		Dur("delay", delay).
		Msg("scheduled reconnect")

	go func() {
		select {
		case <-timer.Chan():
		case <-cancelCh:
			return
		}

		p.mu.Lock()
		fired := p.pending && p.timer == timer
		if fired {
			p.pending = false
			p.timer = nil
			p.cancelCh = nil
		}
		p.mu.Unlock()

		// A Cancel that lost the race with the timer firing leaves
		// fired == false; the retry must not run then.
		if fired {
			p.retry()
		}
	}()
}

// Cancel clears any pending retry timer. Called on deliberate disconnect and
// on an explicit new Connect so duplicate connections cannot appear.
func (p *ReconnectPolicy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return
	}
	p.pending = false
	if p.timer != nil {
		stopAndDrainTimer(p.timer)
		p.timer = nil
	}
	if p.cancelCh != nil {
		close(p.cancelCh)
		p.cancelCh = nil
	}
	log.Debug().Msg("cancelled pending reconnect")
}

// Reset zeroes the attempt counter. Called on every successful open.
func (p *ReconnectPolicy) Reset() {
	p.mu.Lock()
	p.attempts = 0
	p.mu.Unlock()
}

// Attempts returns the number of retries scheduled since the last reset.
func (p *ReconnectPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
