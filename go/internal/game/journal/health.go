package journal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// pendingAlert is the queue depth reported as a problem
const pendingAlert = 512

type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	NATSConnected bool      `json:"nats_connected"`
	Published     uint64    `json:"published"`
	Dropped       uint64    `json:"dropped"`
	Failed        uint64    `json:"failed"`
	Pending       int       `json:"pending"`
	LastEventTime time.Time `json:"last_event_time"`
	Errors        []string  `json:"errors"`
}

// connectionChecker is satisfied by JetStreamPublisher
type connectionChecker interface {
	IsConnected() bool
}

// HealthChecker reports on the journal and its NATS connection
type HealthChecker struct {
	journal *Journal
	conn    connectionChecker
}

func NewHealthChecker(j *Journal, conn connectionChecker) *HealthChecker {
	return &HealthChecker{journal: j, conn: conn}
}

func (h *HealthChecker) Check() HealthStatus {
	stats := h.journal.Stats()
	status := HealthStatus{
		Healthy:       true,
		Published:     stats.Published,
		Dropped:       stats.Dropped,
		Failed:        stats.Failed,
		Pending:       stats.Pending,
		LastEventTime: stats.LastEvent,
		Errors:        []string{},
	}

	if h.conn != nil {
		status.NATSConnected = h.conn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if status.Pending > pendingAlert {
		status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", status.Pending))
	}

	return status
}

// ServeHTTP writes the health status, with 503 when unhealthy
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode journal health")
	}
}

// ServeMetrics writes the journal counters in Prometheus text format
func (h *HealthChecker) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	var b strings.Builder
	gauge := func(name, help string, v interface{}) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n\n", name, help, name, name, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}

	gauge("journal_healthy", "Whether the journal is healthy", boolToInt(status.Healthy))
	gauge("journal_nats_connected", "Whether NATS is connected", boolToInt(status.NATSConnected))
	gauge("journal_pending_events", "Changes waiting to be published", status.Pending)
	counter("journal_events_published_total", "Events published to JetStream", status.Published)
	counter("journal_events_dropped_total", "Changes dropped because the queue was full", status.Dropped)
	counter("journal_events_failed_total", "Events that failed to publish", status.Failed)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := w.Write([]byte(b.String())); err != nil {
		log.Error().Err(err).Msg("failed to write journal metrics")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
