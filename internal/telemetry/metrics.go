// Package telemetry provides Prometheus metrics for bot commands and outbound
// API calls, plus request-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// CommandsTotal counts dispatched chat commands by name and outcome.
	CommandsTotal *prometheus.CounterVec
	// CommandDuration observes command handling time in seconds.
	CommandDuration *prometheus.HistogramVec
	// UpstreamRequests counts outbound API calls by target and HTTP status ("error" on transport failure).
	UpstreamRequests *prometheus.CounterVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchbuddies_commands_total",
			Help: "Number of chat commands handled",
		}, []string{"command", "outcome"})
		CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watchbuddies_command_duration_seconds",
			Help:    "Chat command handling duration seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"})
		UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchbuddies_upstream_requests_total",
			Help: "Number of outbound API requests",
		}, []string{"target", "status"})
	})
}

// ObserveCommand records one handled command.
func ObserveCommand(command, outcome string, d time.Duration) {
	if CommandsTotal != nil {
		CommandsTotal.WithLabelValues(command, outcome).Inc()
	}
	if CommandDuration != nil {
		CommandDuration.WithLabelValues(command).Observe(d.Seconds())
	}
}

// ObserveUpstream records one outbound request. A zero status means the
// request never produced a response.
func ObserveUpstream(target string, status int) {
	if UpstreamRequests == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequests.WithLabelValues(target, label).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Request ID helpers ----------------------------------------------------------

type requestKeyType struct{}

var requestKey requestKeyType

// WithRequestID returns a context carrying a fresh request id, and the id.
func WithRequestID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, requestKey, id), id
}

// RequestID returns the request id or empty string.
func RequestID(ctx context.Context) string {
	if s, ok := ctx.Value(requestKey).(string); ok {
		return s
	}
	return ""
}

// Logger returns base with a request_id attribute if ctx carries one.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return base.With(slog.String("request_id", id))
	}
	return base
}
