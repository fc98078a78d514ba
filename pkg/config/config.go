// Package config provides configuration management for the tactics session
// server. It handles environment variable loading, an optional strict TOML
// file layer, validation, and secure defaults for production deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tacticsrpg/pkg/retry"

	"github.com/sirupsen/logrus"
)

// Config represents the server configuration with environment variable
// support. All configuration values can be set via environment variables (or
// an optional TOML file) or will use secure defaults appropriate for
// production deployment. Config is thread-safe; all field access should be
// done through getter methods when used concurrently, or by holding the
// mutex directly.
type Config struct {
	mu sync.RWMutex `json:"-"`

	// ServerPort is the port the HTTP server will listen on.
	ServerPort int `toml:"server_port" json:"server_port"`

	// WebDir is the directory containing static web files for the debug client.
	WebDir string `toml:"web_dir" json:"web_dir"`

	// LogLevel controls the logging verbosity (debug, info, warn, error).
	LogLevel string `toml:"log_level" json:"log_level"`

	// AllowedOrigins is a list of allowed WebSocket origins for CORS.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`

	// MaxRequestSize is the maximum size of incoming frames in bytes.
	MaxRequestSize int64 `toml:"max_request_size" json:"max_request_size"`

	// EnableDevMode enables development-friendly settings (broader CORS, verbose logging).
	EnableDevMode bool `toml:"enable_dev_mode" json:"enable_dev_mode"`

	// RequestTimeout is the HTTP server's read timeout for an incoming request.
	RequestTimeout time.Duration `toml:"request_timeout" json:"request_timeout"`

	// EnableProfiling enables pprof profiling endpoints (/debug/pprof).
	EnableProfiling bool `toml:"enable_profiling" json:"enable_profiling"`

	// ProfilingPort is the port for the profiling server (0 = disabled, same port as main server).
	ProfilingPort int `toml:"profiling_port" json:"profiling_port"`

	// Rate limiting configuration (HTTP/IP layer, token bucket).

	RateLimitEnabled           bool          `toml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RateLimitRequestsPerSecond float64       `toml:"rate_limit_requests_per_second" json:"rate_limit_requests_per_second"`
	RateLimitBurst             int           `toml:"rate_limit_burst" json:"rate_limit_burst"`
	RateLimitCleanupInterval   time.Duration `toml:"rate_limit_cleanup_interval" json:"rate_limit_cleanup_interval"`

	// Per-(user,bucket) sliding-window admission limits (distinct from the
	// HTTP token bucket above; enforced inside the session actor).

	ActionRateLimitPerMinute int `toml:"action_rate_limit_per_minute" json:"action_rate_limit_per_minute"`
	ChatRateLimitPerMinute   int `toml:"chat_rate_limit_per_minute" json:"chat_rate_limit_per_minute"`
	DMRateLimitPerMinute     int `toml:"dm_rate_limit_per_minute" json:"dm_rate_limit_per_minute"`

	// Retry configuration.

	RetryEnabled           bool          `toml:"retry_enabled" json:"retry_enabled"`
	RetryMaxAttempts       int           `toml:"retry_max_attempts" json:"retry_max_attempts"`
	RetryInitialDelay      time.Duration `toml:"retry_initial_delay" json:"retry_initial_delay"`
	RetryMaxDelay          time.Duration `toml:"retry_max_delay" json:"retry_max_delay"`
	RetryBackoffMultiplier float64       `toml:"retry_backoff_multiplier" json:"retry_backoff_multiplier"`
	RetryJitterPercent     int           `toml:"retry_jitter_percent" json:"retry_jitter_percent"`

	// Persistence / Store Gateway configuration.

	// StoreDriver selects the store.Store backend: "file" (default) or "postgres".
	StoreDriver string `toml:"store_driver" json:"store_driver"`

	// DataDir is the directory where session snapshots are persisted by FileStore.
	DataDir string `toml:"data_dir" json:"data_dir"`

	// DatabaseURL is the pgx connection string used by PostgresStore when StoreDriver is "postgres".
	DatabaseURL string `toml:"database_url" json:"database_url"`

	// SnapshotMutationInterval is how many accepted mutations elapse between
	// forced snapshot persistence.
	SnapshotMutationInterval int `toml:"snapshot_mutation_interval" json:"snapshot_mutation_interval"`

	// SnapshotFailureThreshold is the number of consecutive snapshot write
	// failures after which the owning session is force-paused.
	SnapshotFailureThreshold int `toml:"snapshot_failure_threshold" json:"snapshot_failure_threshold"`

	// Connection / session lifecycle timing.

	// AuthHandshakeTimeout bounds how long a new connection has to send its
	// auth message before being dropped.
	AuthHandshakeTimeout time.Duration `toml:"auth_handshake_timeout" json:"auth_handshake_timeout"`

	// PingInterval is how often the server pings an idle connection.
	PingInterval time.Duration `toml:"ping_interval" json:"ping_interval"`

	// PongTimeout is how long the server waits for a pong before closing the connection.
	PongTimeout time.Duration `toml:"pong_timeout" json:"pong_timeout"`

	// ReconnectWindow is how long a disconnected participant's seat is held
	// open for reconnection before being treated as abandoned.
	ReconnectWindow time.Duration `toml:"reconnect_window" json:"reconnect_window"`

	// OwnTurnDisconnectGrace is how long the actor waits after a disconnect
	// during the disconnected user's own turn before forcing an early
	// turn-deadline tick, distinct from the longer ReconnectWindow.
	OwnTurnDisconnectGrace time.Duration `toml:"own_turn_disconnect_grace" json:"own_turn_disconnect_grace"`

	// SessionIdleTimeout is how long an empty session sits in the registry
	// before being disposed.
	SessionIdleTimeout time.Duration `toml:"session_idle_timeout" json:"session_idle_timeout"`

	// TurnDeadline is the default duration a participant has to act on their turn.
	TurnDeadline time.Duration `toml:"turn_deadline" json:"turn_deadline"`

	// ActorInboxSize bounds the number of queued messages a session actor will hold.
	ActorInboxSize int `toml:"actor_inbox_size" json:"actor_inbox_size"`

	// ConnectionOutboxSize bounds the number of queued outbound frames per connection.
	ConnectionOutboxSize int `toml:"connection_outbox_size" json:"connection_outbox_size"`

	// Server lifecycle timeouts.

	ShutdownTimeout     time.Duration `toml:"shutdown_timeout" json:"shutdown_timeout"`
	ShutdownGracePeriod time.Duration `toml:"shutdown_grace_period" json:"shutdown_grace_period"`
}

// Load creates a new Config instance by reading from environment variables
// and applying secure defaults. It validates all configuration values and
// returns an error if any required values are missing or invalid.
func Load() (*Config, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"package":  "config",
	}).Debug("entering Load")

	config := defaults()

	logrus.WithFields(logrus.Fields{
		"function":    "Load",
		"package":     "config",
		"server_port": config.ServerPort,
		"dev_mode":    config.EnableDevMode,
		"log_level":   config.LogLevel,
	}).Debug("configuration loaded, starting validation")

	if err := config.validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"package":  "config",
			"error":    err,
		}).Error("configuration validation failed")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Load",
		"package":      "config",
		"server_port":  config.ServerPort,
		"store_driver": config.StoreDriver,
	}).Debug("exiting Load - configuration successfully loaded and validated")

	return config, nil
}

func defaults() *Config {
	return &Config{
		ServerPort:     getEnvAsInt("SERVER_PORT", 8080),
		WebDir:         getEnvAsString("WEB_DIR", "./web"),
		LogLevel:       getEnvAsString("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{}),
		MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 64*1024), // 64KB default, frames are small JSON envelopes
		EnableDevMode:  getEnvAsBool("ENABLE_DEV_MODE", true),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Second),

		EnableProfiling: getEnvAsBool("ENABLE_PROFILING", false),
		ProfilingPort:   getEnvAsInt("PROFILING_PORT", 0),

		RateLimitEnabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerSecond: getEnvAsFloat64("RATE_LIMIT_REQUESTS_PER_SECOND", 5),
		RateLimitBurst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		RateLimitCleanupInterval:   getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 1*time.Minute),

		ActionRateLimitPerMinute: getEnvAsInt("ACTION_RATE_LIMIT_PER_MINUTE", 30),
		ChatRateLimitPerMinute:   getEnvAsInt("CHAT_RATE_LIMIT_PER_MINUTE", 20),
		DMRateLimitPerMinute:     getEnvAsInt("DM_RATE_LIMIT_PER_MINUTE", 60),

		RetryEnabled:           getEnvAsBool("RETRY_ENABLED", true),
		RetryMaxAttempts:       getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:      getEnvAsDuration("RETRY_INITIAL_DELAY", 100*time.Millisecond),
		RetryMaxDelay:          getEnvAsDuration("RETRY_MAX_DELAY", 5*time.Second),
		RetryBackoffMultiplier: getEnvAsFloat64("RETRY_BACKOFF_MULTIPLIER", 2.0),
		RetryJitterPercent:     getEnvAsInt("RETRY_JITTER_PERCENT", 10),

		StoreDriver:              getEnvAsString("STORE_DRIVER", "file"),
		DataDir:                  getEnvAsString("DATA_DIR", "./data"),
		DatabaseURL:              getEnvAsString("DATABASE_URL", ""),
		SnapshotMutationInterval: getEnvAsInt("SNAPSHOT_MUTATION_INTERVAL", 25),
		SnapshotFailureThreshold: getEnvAsInt("SNAPSHOT_FAILURE_THRESHOLD", 3),

		AuthHandshakeTimeout: getEnvAsDuration("AUTH_HANDSHAKE_TIMEOUT", 5*time.Second),
		PingInterval:         getEnvAsDuration("PING_INTERVAL", 30*time.Second),
		PongTimeout:          getEnvAsDuration("PONG_TIMEOUT", 10*time.Second),
		ReconnectWindow:        getEnvAsDuration("RECONNECT_WINDOW", time.Minute),
		OwnTurnDisconnectGrace: getEnvAsDuration("OWN_TURN_DISCONNECT_GRACE", 10*time.Second),
		SessionIdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		TurnDeadline:         getEnvAsDuration("TURN_DEADLINE", 60*time.Second),
		ActorInboxSize:       getEnvAsInt("ACTOR_INBOX_SIZE", 1024),
		ConnectionOutboxSize: getEnvAsInt("CONNECTION_OUTBOX_SIZE", 256),

		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: getEnvAsDuration("SHUTDOWN_GRACE_PERIOD", 1*time.Second),
	}
}

// validate checks that all configuration values are valid and consistent.
func (c *Config) validate() error {
	if err := c.validateServerSettings(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateSecuritySettings(); err != nil {
		return err
	}
	if err := c.validateRateLimitConfig(); err != nil {
		return err
	}
	if err := c.validateRetryConfig(); err != nil {
		return err
	}
	if err := c.validateStoreConfig(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServerSettings() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.ServerPort)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, level := range validLogLevels {
		if strings.ToLower(c.LogLevel) == level {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("log level must be one of %v, got %s", validLogLevels, c.LogLevel)
	}

	return nil
}

func (c *Config) validateTimeouts() error {
	if c.RequestTimeout < time.Millisecond {
		return fmt.Errorf("request timeout must be at least 1ms, got %v", c.RequestTimeout)
	}
	if c.TurnDeadline < time.Second {
		return fmt.Errorf("turn deadline must be at least 1 second, got %v", c.TurnDeadline)
	}
	if c.ReconnectWindow < 0 {
		return fmt.Errorf("reconnect window must be non-negative, got %v", c.ReconnectWindow)
	}
	if c.OwnTurnDisconnectGrace < 0 {
		return fmt.Errorf("own-turn disconnect grace must be non-negative, got %v", c.OwnTurnDisconnectGrace)
	}
	if c.PongTimeout <= 0 || c.PingInterval <= 0 {
		return fmt.Errorf("ping interval and pong timeout must be positive")
	}
	return nil
}

func (c *Config) validateSecuritySettings() error {
	if c.MaxRequestSize < 256 {
		return fmt.Errorf("max request size must be at least 256 bytes, got %d", c.MaxRequestSize)
	}

	if !c.EnableDevMode && len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed origins must be specified when dev mode is disabled")
	}

	return nil
}

func (c *Config) validateRateLimitConfig() error {
	if c.RateLimitEnabled {
		if c.RateLimitRequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit requests per second must be greater than 0 when rate limiting is enabled")
		}
		if c.RateLimitBurst <= 0 {
			return fmt.Errorf("rate limit burst must be greater than 0 when rate limiting is enabled")
		}
	}

	if c.ActionRateLimitPerMinute <= 0 || c.ChatRateLimitPerMinute <= 0 || c.DMRateLimitPerMinute <= 0 {
		return fmt.Errorf("per-bucket rate limits must be positive")
	}

	return nil
}

func (c *Config) validateRetryConfig() error {
	if c.RetryEnabled {
		if c.RetryMaxAttempts < 1 {
			return fmt.Errorf("retry max attempts must be at least 1 when retry is enabled")
		}
		if c.RetryInitialDelay < 0 {
			return fmt.Errorf("retry initial delay must be non-negative when retry is enabled")
		}
		if c.RetryMaxDelay < c.RetryInitialDelay {
			return fmt.Errorf("retry max delay must be greater than or equal to initial delay when retry is enabled")
		}
		if c.RetryBackoffMultiplier <= 1.0 {
			return fmt.Errorf("retry backoff multiplier must be greater than 1.0 when retry is enabled")
		}
		if c.RetryJitterPercent < 0 || c.RetryJitterPercent > 100 {
			return fmt.Errorf("retry jitter percent must be between 0 and 100 when retry is enabled")
		}
	}

	return nil
}

func (c *Config) validateStoreConfig() error {
	switch c.StoreDriver {
	case "file":
		if c.DataDir == "" {
			return fmt.Errorf("data dir must be set when store driver is file")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database url must be set when store driver is postgres")
		}
	default:
		return fmt.Errorf("store driver must be one of [file postgres], got %s", c.StoreDriver)
	}

	if c.SnapshotMutationInterval < 1 {
		return fmt.Errorf("snapshot mutation interval must be at least 1, got %d", c.SnapshotMutationInterval)
	}
	if c.SnapshotFailureThreshold < 1 {
		return fmt.Errorf("snapshot failure threshold must be at least 1, got %d", c.SnapshotFailureThreshold)
	}

	return nil
}

// OriginAllowed checks if the given origin is allowed for WebSocket connections.
// In development mode, all origins are allowed. In production mode, only explicitly
// allowed origins are permitted. This method is thread-safe.
func (c *Config) OriginAllowed(origin string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.EnableDevMode {
		return true
	}

	for _, allowed := range c.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

// GetRetryConfig creates a retry.RetryConfig from the current configuration.
func (c *Config) GetRetryConfig() retry.RetryConfig {
	return retry.RetryConfig{
		MaxAttempts:       c.RetryMaxAttempts,
		InitialDelay:      c.RetryInitialDelay,
		MaxDelay:          c.RetryMaxDelay,
		BackoffMultiplier: c.RetryBackoffMultiplier,
		JitterMaxPercent:  c.RetryJitterPercent,
		RetryableErrors:   []error{},
	}
}

// Helper functions for environment variable parsing with type safety and defaults.

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
