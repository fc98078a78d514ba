package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacticsrpg/pkg/config"
	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.ServerPort = 0
	return cfg
}

// TestConfigureLogging tests the logging configuration function.
func TestConfigureLogging(t *testing.T) {
	tests := []struct {
		name          string
		logLevel      string
		expectedLevel logrus.Level
	}{
		{name: "debug level", logLevel: "debug", expectedLevel: logrus.DebugLevel},
		{name: "info level", logLevel: "info", expectedLevel: logrus.InfoLevel},
		{name: "warn level", logLevel: "warn", expectedLevel: logrus.WarnLevel},
		{name: "error level", logLevel: "error", expectedLevel: logrus.ErrorLevel},
		{name: "invalid level falls back to info", logLevel: "invalid", expectedLevel: logrus.InfoLevel},
		{name: "empty level falls back to info", logLevel: "", expectedLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logrus.SetOutput(io.Discard)
			defer logrus.SetOutput(os.Stderr)

			configureLogging(tt.logLevel)
			assert.Equal(t, tt.expectedLevel, logrus.GetLevel())
		})
	}
}

// TestLogStartupInfo tests that startup info is logged correctly.
func TestLogStartupInfo(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	defer logrus.SetOutput(os.Stderr)

	cfg := testConfig(t)
	cfg.ServerPort = 8080
	cfg.LogLevel = "info"
	cfg.StoreDriver = "file"

	logStartupInfo(cfg)

	output := buf.String()
	assert.Contains(t, output, "starting tactics session server")
	assert.Contains(t, output, "8080")
	assert.Contains(t, output, "file")
}

// TestSetupShutdownHandling tests the shutdown signal channel setup.
func TestSetupShutdownHandling(t *testing.T) {
	sigChan, errChan := setupShutdownHandling()

	assert.NotNil(t, sigChan)
	assert.NotNil(t, errChan)
	assert.Equal(t, 1, cap(sigChan))
	assert.Equal(t, 1, cap(errChan))

	signal.Stop(sigChan)
}

// TestOpenStoreFile verifies the default "file" driver opens a working
// Store Gateway rooted at cfg.DataDir.
func TestOpenStoreFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "file"

	st := openStore(cfg)
	require.NotNil(t, st)
	defer st.Close()

	_, ok := st.(*store.FileStore)
	assert.True(t, ok)
}

// TestInitializeRegistryCreatesSessions verifies the registry built from
// cfg can create a session and that the session gets a six-character
// invite code.
func TestInitializeRegistryCreatesSessions(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.NewFileStore(cfg.DataDir)
	require.NoError(t, err)
	defer st.Close()

	registry := initializeRegistry(cfg, st)
	require.NotNil(t, registry)
	defer registry.Close()

	actor, err := registry.Create(context.Background(), "host-1", store.SessionConfig{MaxPlayers: 4, TurnDeadlineSecond: 30})
	require.NoError(t, err)
	assert.Len(t, actor.InviteCode(), 6)
}

// TestInitializeServerWithValidConfig tests server initialization with a valid configuration.
func TestInitializeServerWithValidConfig(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.NewFileStore(cfg.DataDir)
	require.NoError(t, err)
	defer st.Close()
	registry := initializeRegistry(cfg, st)
	defer registry.Close()

	srv, listener := initializeServer(cfg, st, registry)

	assert.NotNil(t, srv)
	assert.NotNil(t, listener)

	addr := listener.Addr().(*net.TCPAddr)
	assert.Greater(t, addr.Port, 0)

	listener.Close()
}

// TestStartServerAsync tests the asynchronous server start.
func TestStartServerAsync(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.NewFileStore(cfg.DataDir)
	require.NoError(t, err)
	defer st.Close()
	registry := initializeRegistry(cfg, st)
	defer registry.Close()

	srv, listener := initializeServer(cfg, st, registry)
	errChan := make(chan error, 1)

	startServerAsync(srv, listener, errChan)
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-errChan:
		t.Fatalf("Server failed unexpectedly: %v", err)
	default:
	}

	require.NoError(t, srv.Shutdown(context.Background()))
	time.Sleep(50 * time.Millisecond)
}

// TestWaitForShutdownSignal_Signal tests that shutdown signal is handled.
func TestWaitForShutdownSignal_Signal(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	errChan := make(chan error, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		sigChan <- syscall.SIGINT
	}()

	done := make(chan struct{})
	go func() {
		waitForShutdownSignal(sigChan, errChan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitForShutdownSignal did not return after signal")
	}
}

// TestWaitForShutdownSignal_Error tests that server errors trigger shutdown.
func TestWaitForShutdownSignal_Error(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	errChan := make(chan error, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		errChan <- assert.AnError
	}()

	done := make(chan struct{})
	go func() {
		waitForShutdownSignal(sigChan, errChan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitForShutdownSignal did not return after error")
	}
}

// TestPerformGracefulShutdown tests the graceful shutdown process, including
// that the store is closed.
func TestPerformGracefulShutdown(t *testing.T) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := testConfig(t)
	st, err := store.NewFileStore(cfg.DataDir)
	require.NoError(t, err)
	registry := initializeRegistry(cfg, st)
	defer registry.Close()

	srv, listener := initializeServer(cfg, st, registry)
	listener.Close()

	done := make(chan struct{})
	go func() {
		performGracefulShutdown(srv, st)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Graceful shutdown did not complete in time")
	}
}

// TestLoadAndConfigureSystem tests the configuration loading function.
func TestLoadAndConfigureSystem(t *testing.T) {
	os.Setenv("SERVER_PORT", "9999")
	os.Setenv("LOG_LEVEL", "warn")
	defer os.Unsetenv("SERVER_PORT")
	defer os.Unsetenv("LOG_LEVEL")

	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := loadAndConfigureSystem()

	assert.NotNil(t, cfg)
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, "warn", cfg.LogLevel)
}

// TestExecuteServerLifecycle tests the full server lifecycle with early shutdown.
func TestExecuteServerLifecycle(t *testing.T) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := testConfig(t)
	st, err := store.NewFileStore(cfg.DataDir)
	require.NoError(t, err)
	registry := initializeRegistry(cfg, st)
	defer registry.Close()

	srv, listener := initializeServer(cfg, st, registry)

	done := make(chan struct{})
	go func() {
		sigChan, errChan := setupShutdownHandling()
		startServerAsync(srv, listener, errChan)

		go func() {
			time.Sleep(50 * time.Millisecond)
			sigChan <- syscall.SIGINT
		}()

		waitForShutdownSignal(sigChan, errChan)
		performGracefulShutdown(srv, st)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Server lifecycle did not complete in time")
	}
}

// TestRestoreSessionsRematerializesPausedSessions covers the boot-time
// recovery path: a non-ended session with a snapshot already on disk comes
// back paused and reachable through the freshly constructed registry.
func TestRestoreSessionsRematerializesPausedSessions(t *testing.T) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := testConfig(t)
	st, err := store.NewFileStore(cfg.DataDir)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.CreateSession(context.Background(), store.Session{
		ID: "sess-restore", InviteCode: "RESTOR", HostUserID: "host",
		Config: store.SessionConfig{MaxPlayers: 4, TurnDeadlineSecond: 30},
		Phase:  store.PhasePlaying, CreatedAt: time.Now(),
	}))
	state := game.GameState{Map: game.NewGameMap(5, 5)}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, st.PutSnapshot(context.Background(), store.Snapshot{
		SessionID: "sess-restore", StateVersion: 3, State: data, Timestamp: time.Now(),
	}))

	registry := initializeRegistry(cfg, st)
	defer registry.Close()
	restoreSessions(registry)

	actor, ok := registry.Lookup("sess-restore")
	require.True(t, ok)
	assert.Equal(t, "RESTOR", actor.InviteCode())
}

// BenchmarkConfigureLogging benchmarks the logging configuration.
func BenchmarkConfigureLogging(b *testing.B) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	for i := 0; i < b.N; i++ {
		configureLogging("info")
	}
}

// BenchmarkSetupShutdownHandling benchmarks shutdown handler setup.
func BenchmarkSetupShutdownHandling(b *testing.B) {
	for i := 0; i < b.N; i++ {
		sigChan, _ := setupShutdownHandling()
		signal.Stop(sigChan)
	}
}
