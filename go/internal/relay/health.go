package relay

import (
	"encoding/json"
	"net/http"
	"time"
)

// busConn is the optional connectivity surface of the publisher; *nats.Conn
// satisfies it.
type busConn interface {
	IsConnected() bool
}

// HealthStatus is a point-in-time view of the relay.
type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	BusConnected  bool      `json:"bus_connected"`
	EventsRelayed uint64    `json:"events_relayed"`
	EventsDropped uint64    `json:"events_dropped"`
	LastEventTime time.Time `json:"last_event_time"`
}

// Health checks the relay and its bus connection.
func (r *Relay) Health() HealthStatus {
	relayed, dropped, lastEvent := r.Stats()

	status := HealthStatus{
		Healthy:       true,
		BusConnected:  true,
		EventsRelayed: relayed,
		EventsDropped: dropped,
		LastEventTime: lastEvent,
	}

	if conn, ok := r.publisher.(busConn); ok {
		status.BusConnected = conn.IsConnected()
		if !status.BusConnected {
			status.Healthy = false
		}
	}
	if dropped > 0 && dropped >= relayed {
		status.Healthy = false
	}
	return status
}

// ServeHTTP serves the health snapshot as JSON for local diagnostics.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	status := r.Health()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
