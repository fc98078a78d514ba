package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tacticsrpg/pkg/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		existingHeader string
		expectNewID    bool
	}{
		{name: "generates new ID when header is missing", expectNewID: true},
		{name: "uses existing ID when header is present", existingHeader: "test-request-id-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedRequestID string
			var capturedLogger *logrus.Entry
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedRequestID = GetRequestID(r.Context())
				capturedLogger = getLoggerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.existingHeader != "" {
				req.Header.Set("X-Request-ID", tt.existingHeader)
			}
			w := httptest.NewRecorder()

			RequestIDMiddleware(next).ServeHTTP(w, req)

			responseID := w.Header().Get("X-Request-ID")
			require.NotEmpty(t, responseID)
			require.NotEmpty(t, capturedRequestID)
			assert.Equal(t, responseID, capturedRequestID)
			require.NotNil(t, capturedLogger)
			assert.Equal(t, capturedRequestID, capturedLogger.Data["request_id"])

			if tt.expectNewID {
				_, err := uuid.Parse(capturedRequestID)
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.existingHeader, capturedRequestID)
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	orig := logrus.StandardLogger().Out
	logrus.SetOutput(&buf)
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetOutput(orig)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	chain := RequestIDMiddleware(LoggingMiddleware(next))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "request_id")
	assert.Contains(t, out, "418")
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf strings.Builder
	orig := logrus.StandardLogger().Out
	logrus.SetOutput(&buf)
	logrus.SetLevel(logrus.ErrorLevel)
	defer logrus.SetOutput(orig)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})
	chain := RequestIDMiddleware(RecoveryMiddleware(next))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() { chain.ServeHTTP(w, req) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	out := buf.String()
	assert.Contains(t, out, "recovered from panic")
	assert.Contains(t, out, "test panic")
	assert.Contains(t, out, "request_id")
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		devMode        bool
		allowedOrigins []string
		requestOrigin  string
		expectAllowed  bool
		isOptions      bool
	}{
		{name: "dev mode allows all origins", devMode: true, requestOrigin: "https://example.com", expectAllowed: true},
		{
			name:           "specific origin allowed",
			allowedOrigins: []string{"https://example.com", "https://test.com"},
			requestOrigin:  "https://example.com",
			expectAllowed:  true,
		},
		{
			name:           "origin not in allowed list",
			allowedOrigins: []string{"https://example.com"},
			requestOrigin:  "https://malicious.com",
			expectAllowed:  false,
		},
		{
			name:           "OPTIONS preflight request",
			allowedOrigins: []string{"https://example.com"},
			requestOrigin:  "https://example.com",
			expectAllowed:  true,
			isOptions:      true,
		},
		{name: "empty origin list denies all", requestOrigin: "https://example.com", expectAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{EnableDevMode: tt.devMode, AllowedOrigins: tt.allowedOrigins}

			handlerCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			})
			mw := CORSMiddleware(cfg)(next)

			method := http.MethodGet
			if tt.isOptions {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/test", nil)
			req.Header.Set("Origin", tt.requestOrigin)
			w := httptest.NewRecorder()

			mw.ServeHTTP(w, req)

			corsOrigin := w.Header().Get("Access-Control-Allow-Origin")
			if tt.expectAllowed {
				assert.Equal(t, tt.requestOrigin, corsOrigin)
			} else {
				assert.Empty(t, corsOrigin)
			}
			assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
			assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Headers"))

			if tt.isOptions {
				assert.Equal(t, http.StatusOK, w.Code)
				assert.False(t, handlerCalled, "handler must not run for preflight")
			} else {
				assert.True(t, handlerCalled)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{name: "uses X-Forwarded-For first entry", headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, want: "1.2.3.4"},
		{name: "falls back to X-Real-IP", headers: map[string]string{"X-Real-IP": "9.9.9.9"}, want: "9.9.9.9"},
		{name: "falls back to RemoteAddr host", remoteAddr: "10.0.0.1:5555", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.remoteAddr != "" {
				req.RemoteAddr = tt.remoteAddr
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestExtractFirstIP(t *testing.T) {
	assert.Equal(t, "1.2.3.4", extractFirstIP("1.2.3.4, 5.6.7.8"))
	assert.Equal(t, "1.2.3.4", extractFirstIP("1.2.3.4"))
	assert.Equal(t, "", extractFirstIP(""))
}

func TestGetRequestIDMissingFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}
