// Package main implements the tactics session server application.
//
// This is the entry point for the turn-based tactics session runtime: a
// process that hosts many concurrent game sessions, each owned by a single
// session actor goroutine, reachable over authenticated WebSocket
// connections.
//
// # Architecture
//
// The server application follows a clean separation of concerns:
//
//   - Configuration loading and validation (via pkg/config)
//   - Logging setup and initialization
//   - Store Gateway construction, file or postgres-backed (via pkg/store)
//   - Session registry and simulation adapter wiring (via pkg/session, pkg/game)
//   - HTTP/WebSocket server lifecycle with graceful shutdown (via pkg/server)
//   - Signal handling for SIGINT and SIGTERM
//
// # Startup Sequence
//
//  1. Load configuration from environment variables (and an optional TOML
//     overlay) with secure defaults
//  2. Configure logging based on LOG_LEVEL
//  3. Construct the Store Gateway named by STORE_DRIVER
//  4. Construct the session registry around the store and simulation adapter
//  5. Re-materialize every non-ended session from its latest snapshot,
//     paused, pending an explicit DM resume
//  6. Start the HTTP/WebSocket server and listen for connections
//  7. Handle shutdown signals gracefully, draining in-flight sessions
//
// # Environment Variables
//
// The server supports the following environment variables (see pkg/config
// for the full list and their defaults):
//
//   - SERVER_PORT: HTTP server port (default: 8080)
//   - LOG_LEVEL: Logging verbosity (debug, info, warn, error; default: info)
//   - ENABLE_DEV_MODE: Development mode flag (default: true)
//   - STORE_DRIVER: Store Gateway backend, "file" or "postgres" (default: file)
//   - DATA_DIR: FileStore persistence directory (default: ./data)
//   - DATABASE_URL: PostgresStore connection string (required when STORE_DRIVER=postgres)
//
// # Usage
//
// Run the server with default settings:
//
//	./server
//
// Run with custom port and debug logging:
//
//	SERVER_PORT=9000 LOG_LEVEL=debug ./server
//
// Run against an optional strict TOML config file:
//
//	./server -config /etc/tacticsrpg/server.toml
//
// # Graceful Shutdown
//
// The server handles SIGINT and SIGTERM gracefully:
//
//  1. Stop accepting new connections
//  2. Allow in-flight HTTP/WebSocket handling to drain within ShutdownTimeout
//  3. Close the store and registry
//  4. Exit cleanly
package main
