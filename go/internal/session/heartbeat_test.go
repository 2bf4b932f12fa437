package session

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeSender struct {
	mu    sync.Mutex
	pings int
}

func (f *fakeSender) Send(eventType EventType, data interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if eventType == EventPing {
		f.pings++
	}
	return true
}

func (f *fakeSender) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func TestHeartbeatSendsPingsOnInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sender := &fakeSender{}
	hb := NewHeartbeat(sender, fc, 30*time.Second)

	hb.Start()
	defer hb.Stop()
	fc.BlockUntil(1)

	if got := sender.pingCount(); got != 1 {
		t.Fatalf("expected immediate ping on start, got %d", got)
	}

	fc.Advance(30 * time.Second)
	waitForPings(t, sender, 2)
	fc.Advance(30 * time.Second)
	waitForPings(t, sender, 3)
}

func TestHeartbeatStopCancelsTicker(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sender := &fakeSender{}
	hb := NewHeartbeat(sender, fc, 30*time.Second)

	hb.Start()
	fc.BlockUntil(1)
	hb.Stop()

	fc.Advance(5 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if got := sender.pingCount(); got != 1 {
		t.Fatalf("expected no pings after stop, got %d total", got)
	}

	// Stop when already stopped is safe.
	hb.Stop()
}

func TestHeartbeatClockOffset(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	fc := clockwork.NewFakeClockAt(base)
	sender := &fakeSender{}
	hb := NewHeartbeat(sender, fc, 30*time.Second)

	hb.Start()
	defer hb.Stop()
	fc.BlockUntil(1)

	// Server reports a clock 500ms ahead of our send time.
	serverTime := base.Add(500 * time.Millisecond)
	hb.HandlePong(PongPayload{ServerTime: serverTime.UnixMilli()})

	if got := hb.Offset(); got != 500*time.Millisecond {
		t.Fatalf("expected offset 500ms, got %v", got)
	}

	// A later measurement simply overwrites the earlier one.
	hb.HandlePong(PongPayload{ServerTime: base.Add(-250 * time.Millisecond).UnixMilli()})
	if got := hb.Offset(); got != -250*time.Millisecond {
		t.Fatalf("expected offset -250ms, got %v", got)
	}
}

func TestHeartbeatLiveness(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sender := &fakeSender{}
	hb := NewHeartbeat(sender, fc, 30*time.Second)

	if _, healthy := hb.Liveness(); healthy {
		t.Fatalf("expected unhealthy before start")
	}

	hb.Start()
	defer hb.Stop()
	fc.BlockUntil(1)

	hb.HandlePong(PongPayload{ServerTime: fc.Now().UnixMilli()})
	since, healthy := hb.Liveness()
	if !healthy || since != 0 {
		t.Fatalf("expected healthy right after pong, got since=%v healthy=%v", since, healthy)
	}

	fc.Advance(59 * time.Second)
	if _, healthy := hb.Liveness(); !healthy {
		t.Fatalf("expected healthy inside 2x interval window")
	}

	fc.Advance(2 * time.Second)
	since, healthy = hb.Liveness()
	if healthy {
		t.Fatalf("expected stale after %v without a pong", since)
	}
}

func waitForPings(t *testing.T, sender *fakeSender, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sender.pingCount() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d pings, got %d", want, sender.pingCount())
}
