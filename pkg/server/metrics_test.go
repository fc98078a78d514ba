package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsHandlerServesPrometheusFormat(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest(http.MethodGet, "/health", http.StatusOK, 10*time.Millisecond, 0, 128)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tactics_http_requests_total")
}

func TestMetricsRecordersDoNotPanic(t *testing.T) {
	m := NewMetrics()

	assert.NotPanics(t, func() {
		m.RecordWebSocketConnection("connected")
		m.RecordWebSocketConnection("disconnected")
		m.RecordWebSocketMessage("inbound", "intent")
		m.RecordPlayerAction("move", "success")
		m.RecordDMCommand("end_game", "success")
		m.RecordGameEvent("unit_moved")
		m.RecordSessionEnded("victory")
		m.RecordSnapshotFailure()
		m.UpdateActiveSessions(3)
		m.UpdateActivePlayers(5)
		m.RecordHealthCheck("store", "success")
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{
		"tactics_websocket_connections_total",
		"tactics_websocket_messages_total",
		"tactics_player_actions_total",
		"tactics_dm_commands_total",
		"tactics_game_events_total",
		"tactics_sessions_ended_total",
		"tactics_snapshot_failures_total",
		"tactics_sessions_active",
		"tactics_players_connected",
		"tactics_health_checks_total",
	} {
		assert.True(t, strings.Contains(body, want), "expected metrics output to contain %s", want)
	}
}
