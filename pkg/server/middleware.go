package server

import (
	"context"
	"net"
	"net/http"

	"tacticsrpg/pkg/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey namespaces values stored in a request's context to avoid
// collisions with keys set by other packages.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	loggerKey    ContextKey = "logger"
)

// RequestIDMiddleware assigns each request a correlation id, reusing
// X-Request-ID if the caller supplied one, and stashes a logger tagged
// with it in the request context for downstream middleware/handlers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		logger := logrus.WithField("request_id", requestID)
		ctx = context.WithValue(ctx, loggerKey, logger)
		r = r.WithContext(ctx)

		logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"remote_ip": getClientIP(r),
		}).Debug("processing request")

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs the outcome of every HTTP request at Info level.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := getLoggerFromContext(r.Context())
		wrapper := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		logger.WithFields(logrus.Fields{
			"status_code": wrapper.statusCode,
			"method":      r.Method,
			"path":        r.URL.Path,
		}).Info("request completed")
	})
}

// RecoveryMiddleware recovers from panics in downstream handlers, logging
// the panic with request context instead of crashing the process.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				getLoggerFromContext(r.Context()).WithFields(logrus.Fields{
					"panic":  err,
					"method": r.Method,
					"path":   r.URL.Path,
				}).Error("recovered from panic")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware sets CORS headers using cfg.OriginAllowed as the source of
// truth, so dev-mode and the allow-list behave identically to the
// WebSocket upgrade's own origin check.
func CORSMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && cfg.OriginAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func getLoggerFromContext(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(loggerKey).(*logrus.Entry); ok {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// GetRequestID retrieves the request id a RequestIDMiddleware set.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if first := extractFirstIP(ip); first != "" {
			return first
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func extractFirstIP(ips string) string {
	for i := 0; i < len(ips); i++ {
		if ips[i] == ',' {
			return trimSpaces(ips[:i])
		}
	}
	return trimSpaces(ips)
}

func trimSpaces(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

// loggingResponseWriter wraps http.ResponseWriter to capture the status
// code written, so LoggingMiddleware can log it after the fact.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
