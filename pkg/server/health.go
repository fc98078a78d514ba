package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tacticsrpg/pkg/resilience"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the overall health status of the server.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// CheckResult is the outcome of a single health check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// HealthResponse is the complete health check response.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Checks    []CheckResult `json:"checks"`
}

// HealthChecker manages health checks for the server's dependent systems.
type HealthChecker struct {
	checks map[string]func(context.Context) error
	server *Server
}

// NewHealthChecker builds a HealthChecker wired to srv's store, registry,
// and rate limiter.
func NewHealthChecker(srv *Server) *HealthChecker {
	hc := &HealthChecker{
		checks: make(map[string]func(context.Context) error),
		server: srv,
	}

	hc.RegisterCheck("server", hc.checkServer)
	hc.RegisterCheck("store", hc.checkStore)
	hc.RegisterCheck("session_registry", hc.checkRegistry)
	hc.RegisterCheck("rate_limiter", hc.checkRateLimiter)
	hc.RegisterCheck("circuit_breakers", hc.checkCircuitBreakers)
	hc.RegisterCheck("configuration", hc.checkConfiguration)

	return hc
}

// RegisterCheck adds or replaces the named check.
func (hc *HealthChecker) RegisterCheck(name string, check func(context.Context) error) {
	hc.checks[name] = check
}

// RunHealthChecks executes every registered check and aggregates the result.
func (hc *HealthChecker) RunHealthChecks(ctx context.Context) HealthResponse {
	start := time.Now()
	response := HealthResponse{
		Timestamp: start,
		Checks:    make([]CheckResult, 0, len(hc.checks)),
	}

	overall := HealthStatusHealthy

	for name, check := range hc.checks {
		checkStart := time.Now()
		result := CheckResult{Name: name, Status: HealthStatusHealthy}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()

		result.Duration = time.Since(checkStart)

		if err != nil {
			result.Status = HealthStatusUnhealthy
			result.Error = err.Error()
			overall = HealthStatusUnhealthy
			if hc.server.metrics != nil {
				hc.server.metrics.RecordHealthCheck(name, "failure")
			}
			logrus.WithFields(logrus.Fields{"check": name, "error": err}).Warn("health check failed")
		} else if hc.server.metrics != nil {
			hc.server.metrics.RecordHealthCheck(name, "success")
		}

		response.Checks = append(response.Checks, result)
	}

	response.Status = overall
	response.Duration = time.Since(start)
	return response
}

// HealthHandler serves the detailed /health endpoint.
func (hc *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	response := hc.RunHealthChecks(r.Context())

	httpStatus := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logrus.WithError(err).Error("failed to encode health response")
	}
}

// ReadinessHandler serves the Kubernetes-style /ready probe.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := hc.RunHealthChecks(r.Context())
	if response.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler serves the /live probe: the process is up and serving.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

func (hc *HealthChecker) checkServer(ctx context.Context) error {
	if hc.server == nil {
		return fmt.Errorf("server instance is nil")
	}
	select {
	case <-hc.server.done:
		return fmt.Errorf("server is shutting down")
	default:
		return nil
	}
}

func (hc *HealthChecker) checkStore(ctx context.Context) error {
	if hc.server.store == nil {
		return fmt.Errorf("store is not initialized")
	}
	// ListActiveSessions exercises a real round trip through whichever
	// backend (file or postgres) is configured.
	if _, err := hc.server.store.ListActiveSessions(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

func (hc *HealthChecker) checkRegistry(ctx context.Context) error {
	if hc.server.registry == nil {
		return fmt.Errorf("session registry is not initialized")
	}
	return nil
}

func (hc *HealthChecker) checkRateLimiter(ctx context.Context) error {
	if hc.server.cfg != nil && hc.server.cfg.RateLimitEnabled && hc.server.httpLimiter == nil {
		return fmt.Errorf("http rate limiter is not initialized")
	}
	return nil
}

func (hc *HealthChecker) checkCircuitBreakers(ctx context.Context) error {
	names := resilience.GetGlobalCircuitBreakerManager().GetBreakerNames()
	for _, name := range names {
		cb, ok := resilience.GetGlobalCircuitBreakerManager().Get(name)
		if !ok {
			continue
		}
		if cb.GetState() == resilience.StateOpen {
			return fmt.Errorf("circuit breaker %q is open", name)
		}
	}
	return nil
}

func (hc *HealthChecker) checkConfiguration(ctx context.Context) error {
	if hc.server.cfg == nil {
		return fmt.Errorf("configuration is not loaded")
	}
	return nil
}
