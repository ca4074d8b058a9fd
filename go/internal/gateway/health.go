package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/duksung/maccheese/go/internal/monitor"
)

type HealthStatus struct {
	Healthy       bool            `json:"healthy"`
	Monitor       monitor.Stats   `json:"monitor"`
	Connections   ConnectionStats `json:"connections"`
	OpenSessions  int             `json:"open_sessions"`
	ClockPaused   bool            `json:"clock_paused"`
	NATSEnabled   bool            `json:"nats_enabled"`
	NATSConnected bool            `json:"nats_connected"`
	Errors        []string        `json:"errors"`
}

// BrokerStatus reports connectivity of the optional event broker.
type BrokerStatus interface {
	IsConnected() bool
}

// HealthChecker reports whether the client services are making progress.
type HealthChecker struct {
	watcher     Watcher
	connections *ConnectionManager
	sessions    Sessions
	lifecycle   Lifecycle
	broker      BrokerStatus
	threshold   time.Duration // How long a non-empty watch set may go without a sweep
}

// NewHealthChecker creates a checker. broker may be nil when no broker is configured.
func NewHealthChecker(watcher Watcher, connections *ConnectionManager, sessions Sessions, lifecycle Lifecycle, broker BrokerStatus, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		watcher:     watcher,
		connections: connections,
		sessions:    sessions,
		lifecycle:   lifecycle,
		broker:      broker,
		threshold:   threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:      true,
		Monitor:      h.watcher.Stats(),
		Connections:  h.connections.Stats(),
		OpenSessions: len(h.sessions.Open()),
		ClockPaused:  h.lifecycle.Paused(),
		Errors:       []string{},
	}

	if h.broker != nil {
		status.NATSEnabled = true
		status.NATSConnected = h.broker.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if status.Monitor.Watched > 0 && h.threshold > 0 {
		last := status.Monitor.LastSweep
		if since := h.lifecycle.Now().Sub(last); !last.IsZero() && since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no monitor sweep for %s", since))
		}
	}

	return status
}

// ServeHTTP handles GET /health
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
