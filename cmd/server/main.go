package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tacticsrpg/pkg/config"
	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/ratelimit"
	"tacticsrpg/pkg/server"
	"tacticsrpg/pkg/session"
	"tacticsrpg/pkg/store"
	"tacticsrpg/pkg/validation"
)

func main() {
	cfg := loadAndConfigureSystem()

	st := openStore(cfg)
	registry := initializeRegistry(cfg, st)
	restoreSessions(registry)

	srv, listener := initializeServer(cfg, st, registry)
	executeServerLifecycle(srv, listener, st)
}

// loadAndConfigureSystem parses flags, loads configuration, and sets up logging.
func loadAndConfigureSystem() *config.Config {
	configPath := flag.String("config", "", "path to an optional strict TOML config file overlaying environment defaults")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	configureLogging(cfg.LogLevel)
	logStartupInfo(cfg)
	return cfg
}

// configureLogging sets up the logging system based on configuration.
func configureLogging(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).Warn("invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// logStartupInfo logs server startup information.
func logStartupInfo(cfg *config.Config) {
	logrus.WithFields(logrus.Fields{
		"port":        cfg.ServerPort,
		"logLevel":    cfg.LogLevel,
		"devMode":     cfg.EnableDevMode,
		"storeDriver": cfg.StoreDriver,
	}).Info("starting tactics session server")
}

// openStore constructs the Store Gateway named by cfg.StoreDriver.
func openStore(cfg *config.Config) store.Store {
	switch cfg.StoreDriver {
	case "postgres":
		st, err := store.NewPostgresStore(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logrus.WithError(err).Fatal("failed to open postgres store")
		}
		return st
	default:
		st, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			logrus.WithError(err).Fatal("failed to open file store")
		}
		return st
	}
}

// initializeRegistry constructs the session registry around the store and
// the default simulation adapter.
func initializeRegistry(cfg *config.Config, st store.Store) *session.Registry {
	limits := ratelimit.Limits{
		ActionPerMinute: cfg.ActionRateLimitPerMinute,
		ChatPerMinute:   cfg.ChatRateLimitPerMinute,
		DMPerMinute:     cfg.DMRateLimitPerMinute,
	}
	sessionCfg := session.Config{
		TurnDeadline:             cfg.TurnDeadline,
		ReconnectWindow:          cfg.ReconnectWindow,
		OwnTurnDisconnectGrace:   cfg.OwnTurnDisconnectGrace,
		SessionIdleTimeout:       cfg.SessionIdleTimeout,
		ActorInboxSize:           cfg.ActorInboxSize,
		SnapshotMutationInterval: cfg.SnapshotMutationInterval,
		SnapshotFailureThreshold: cfg.SnapshotFailureThreshold,
	}
	return session.NewRegistry(st, game.NewDefaultSimulator(), limits, sessionCfg)
}

// restoreSessions re-materializes every non-ended session from its latest
// snapshot so a process restart never silently drops in-progress games --
// each comes back paused until its DM explicitly resumes it.
func restoreSessions(registry *session.Registry) {
	if err := registry.RestoreAll(context.Background()); err != nil {
		logrus.WithError(err).Error("failed to restore sessions from snapshots")
	}
}

// initializeServer creates the server and network listener.
func initializeServer(cfg *config.Config, st store.Store, registry *session.Registry) (*server.Server, net.Listener) {
	srv := server.New(cfg, st, registry, validation.DefaultLimits(), nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		logrus.WithError(err).Fatal("failed to start listener")
	}

	return srv, listener
}

// executeServerLifecycle handles the complete server lifecycle including startup and shutdown.
func executeServerLifecycle(srv *server.Server, listener net.Listener, st store.Store) {
	sigChan, errChan := setupShutdownHandling()
	startServerAsync(srv, listener, errChan)
	waitForShutdownSignal(sigChan, errChan)
	performGracefulShutdown(srv, st)
}

// setupShutdownHandling creates channels for graceful shutdown signal handling.
func setupShutdownHandling() (chan os.Signal, chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	errChan := make(chan error, 1)
	return sigChan, errChan
}

// startServerAsync starts the server in a background goroutine.
func startServerAsync(srv *server.Server, listener net.Listener, errChan chan error) {
	go func() {
		if err := srv.Serve(listener); err != nil {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()
}

// waitForShutdownSignal waits for either a shutdown signal or server error.
func waitForShutdownSignal(sigChan chan os.Signal, errChan chan error) {
	select {
	case sig := <-sigChan:
		logrus.WithField("signal", sig).Info("received shutdown signal")
	case err := <-errChan:
		logrus.WithError(err).Error("server error")
	}
}

// performGracefulShutdown stops the HTTP server and releases the store.
func performGracefulShutdown(srv *server.Server, st store.Store) {
	logrus.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("error during server shutdown")
	}
	if err := st.Close(); err != nil {
		logrus.WithError(err).Warn("error closing store")
	}

	logrus.Info("server shutdown completed")
}
