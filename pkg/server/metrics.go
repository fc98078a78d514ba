package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tactics session server.
type Metrics struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestSize     *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec

	activeConnections prometheus.Gauge
	wsConnections     *prometheus.CounterVec
	wsMessages        *prometheus.CounterVec

	activeSessions   prometheus.Gauge
	activePlayers    prometheus.Gauge
	playerActions    *prometheus.CounterVec
	dmCommands       *prometheus.CounterVec
	gameEvents       *prometheus.CounterVec
	sessionsEnded    *prometheus.CounterVec
	snapshotFailures prometheus.Counter

	serverStartTime prometheus.Gauge
	healthChecks    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_http_requests_total",
				Help: "Total number of HTTP requests processed by method and status",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tactics_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		requestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tactics_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tactics_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tactics_websocket_connections_active",
				Help: "Number of active WebSocket connections",
			},
		),
		wsConnections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_websocket_connections_total",
				Help: "Total number of WebSocket connections by outcome",
			},
			[]string{"outcome"}, // "connected", "disconnected", "rejected"
		),
		wsMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_websocket_messages_total",
				Help: "Total number of WebSocket frames by direction and type",
			},
			[]string{"direction", "type"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tactics_sessions_active",
				Help: "Number of live session actors in the registry",
			},
		),
		activePlayers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tactics_players_connected",
				Help: "Number of currently connected participant sockets",
			},
		),
		playerActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_player_actions_total",
				Help: "Total number of intent actions by kind and outcome",
			},
			[]string{"action_kind", "outcome"},
		),
		dmCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_dm_commands_total",
				Help: "Total number of dm_command frames by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		gameEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_game_events_total",
				Help: "Total number of simulator events emitted by type",
			},
			[]string{"event_type"},
		),
		sessionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_sessions_ended_total",
				Help: "Total number of sessions that reached the ended phase by reason",
			},
			[]string{"reason"},
		),
		snapshotFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tactics_snapshot_failures_total",
				Help: "Total number of failed snapshot persistence attempts",
			},
		),
		serverStartTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tactics_server_start_time_seconds",
				Help: "Unix timestamp when the server started",
			},
		),
		healthChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tactics_health_checks_total",
				Help: "Total number of health checks run by name and status",
			},
			[]string{"check_name", "status"},
		),
		registry: registry,
	}

	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.requestSize,
		m.responseSize,
		m.activeConnections,
		m.wsConnections,
		m.wsMessages,
		m.activeSessions,
		m.activePlayers,
		m.playerActions,
		m.dmCommands,
		m.gameEvents,
		m.sessionsEnded,
		m.snapshotFailures,
		m.serverStartTime,
		m.healthChecks,
	)

	m.serverStartTime.SetToCurrentTime()
	return m
}

// Handler returns an HTTP handler serving this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          m.registry,
	})
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	status := strconv.Itoa(statusCode)
	m.requestCount.WithLabelValues(method, endpoint, status).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	if requestSize > 0 {
		m.requestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		m.responseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
	}
}

// RecordWebSocketConnection records a connection lifecycle transition.
func (m *Metrics) RecordWebSocketConnection(outcome string) {
	m.wsConnections.WithLabelValues(outcome).Inc()
	switch outcome {
	case "connected":
		m.activeConnections.Inc()
	case "disconnected":
		m.activeConnections.Dec()
	}
}

// RecordWebSocketMessage records one frame in the given direction.
func (m *Metrics) RecordWebSocketMessage(direction, typ string) {
	m.wsMessages.WithLabelValues(direction, typ).Inc()
}

// RecordPlayerAction records one intent outcome.
func (m *Metrics) RecordPlayerAction(actionKind, outcome string) {
	m.playerActions.WithLabelValues(actionKind, outcome).Inc()
}

// RecordDMCommand records one dm_command outcome.
func (m *Metrics) RecordDMCommand(command, outcome string) {
	m.dmCommands.WithLabelValues(command, outcome).Inc()
}

// RecordGameEvent records one simulator event.
func (m *Metrics) RecordGameEvent(eventType string) {
	m.gameEvents.WithLabelValues(eventType).Inc()
}

// RecordSessionEnded records a session reaching the ended phase.
func (m *Metrics) RecordSessionEnded(reason string) {
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

// RecordSnapshotFailure records one failed snapshot persistence attempt.
func (m *Metrics) RecordSnapshotFailure() {
	m.snapshotFailures.Inc()
}

// UpdateActiveSessions sets the live session count gauge.
func (m *Metrics) UpdateActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// UpdateActivePlayers sets the connected participant count gauge.
func (m *Metrics) UpdateActivePlayers(count int) {
	m.activePlayers.Set(float64(count))
}

// RecordHealthCheck records one health check result.
func (m *Metrics) RecordHealthCheck(checkName, status string) {
	m.healthChecks.WithLabelValues(checkName, status).Inc()
}
