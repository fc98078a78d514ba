// Package config provides configuration management for the tactics session
// server.
//
// # Loading Configuration
//
// Configuration is loaded from environment variables by default:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// An optional TOML file can be layered on top with strict unknown-key
// rejection, useful for deployments that prefer a checked-in file over a
// pile of environment variables:
//
//	cfg, err := config.LoadFile("/etc/tactics/config.toml")
//
// # Environment Variables
//
// Server settings:
//   - SERVER_PORT: HTTP port (default: 8080)
//   - WEB_DIR: Static debug-client directory (default: "./web")
//   - LOG_LEVEL: Logging verbosity (default: "info")
//   - ALLOWED_ORIGINS: CORS/WebSocket allowed origins (comma-separated)
//   - ENABLE_DEV_MODE: Allow all origins, relax some checks (default: true)
//
// Session and connection timing:
//   - AUTH_HANDSHAKE_TIMEOUT, PING_INTERVAL, PONG_TIMEOUT
//   - RECONNECT_WINDOW, SESSION_IDLE_TIMEOUT, TURN_DEADLINE
//   - ACTOR_INBOX_SIZE, CONNECTION_OUTBOX_SIZE
//
// Per-bucket admission limits:
//   - ACTION_RATE_LIMIT_PER_MINUTE, CHAT_RATE_LIMIT_PER_MINUTE, DM_RATE_LIMIT_PER_MINUTE
//
// Store Gateway:
//   - STORE_DRIVER: "file" or "postgres" (default: "file")
//   - DATA_DIR: FileStore root (default: "./data")
//   - DATABASE_URL: pgx connection string, required when STORE_DRIVER=postgres
//   - SNAPSHOT_MUTATION_INTERVAL, SNAPSHOT_FAILURE_THRESHOLD
//
// Retry policy:
//   - RETRY_MAX_ATTEMPTS, RETRY_INITIAL_DELAY, RETRY_MAX_DELAY, RETRY_BACKOFF_MULTIPLIER
//
// # Validation
//
// All configuration values are validated on load: port range, log level,
// timeout minimums, store driver consistency, and rate-limit positivity.
//
// # CORS Support
//
// Use OriginAllowed to check WebSocket origins; in development mode all
// origins are allowed.
package config
