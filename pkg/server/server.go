// Package server is the composition root of the tactics session runtime:
// it wires configuration, the store gateway, the simulation adapter, and
// the session registry behind an HTTP surface (WebSocket upgrade, health,
// metrics) and implements pkg/connection's Router so every authenticated
// frame reaches the right session actor.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"tacticsrpg/pkg/config"
	"tacticsrpg/pkg/connection"
	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/protocol"
	"tacticsrpg/pkg/session"
	"tacticsrpg/pkg/store"
	"tacticsrpg/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server is the process-wide HTTP/WebSocket front door. It implements
// connection.Router, translating validated envelopes into session.Message
// values posted to the right Actor.
type Server struct {
	cfg           *config.Config
	store         store.Store
	registry      *session.Registry
	validator     *validation.Validator
	authenticator Authenticator

	metrics     *Metrics
	health      *HealthChecker
	httpLimiter *HTTPRateLimiter

	httpSrv *http.Server

	mu   sync.Mutex
	done chan struct{}
}

// New builds a Server. authenticator may be nil, in which case
// StaticAuthenticator is used.
func New(cfg *config.Config, st store.Store, reg *session.Registry, limits validation.Limits, authenticator Authenticator) *Server {
	if authenticator == nil {
		authenticator = StaticAuthenticator{}
	}
	s := &Server{
		cfg:           cfg,
		store:         st,
		registry:      reg,
		validator:     validation.New(limits),
		authenticator: authenticator,
		metrics:       NewMetrics(),
		done:          make(chan struct{}),
	}
	if cfg.RateLimitEnabled {
		s.httpLimiter = NewHTTPRateLimiter(cfg)
	}
	s.health = NewHealthChecker(s)
	return s
}

// ServeHTTP routes the small set of fixed endpoints this server exposes:
// health/metrics probes and the single WebSocket upgrade path. Everything
// else is 404.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		s.health.HealthHandler(w, r)
	case "/ready":
		s.health.ReadinessHandler(w, r)
	case "/live":
		s.health.LivenessHandler(w, r)
	case "/metrics":
		s.metrics.Handler().ServeHTTP(w, r)
	case "/ws":
		s.handleWebSocket(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleWebSocket upgrades the HTTP connection and hands it to a fresh
// connection.Connection, which owns the rest of that socket's lifecycle.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			allowed := s.cfg.OriginAllowed(origin)
			if !allowed {
				logrus.WithField("origin", origin).Warn("server: websocket origin rejected")
			}
			return allowed
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("server: websocket upgrade failed")
		return
	}

	s.metrics.RecordWebSocketConnection("connected")
	defer s.metrics.RecordWebSocketConnection("disconnected")

	conn := connection.New(uuid.NewString(), wsConn, s, connection.Config{
		AuthHandshakeTimeout: s.cfg.AuthHandshakeTimeout,
		PingInterval:         s.cfg.PingInterval,
		PongTimeout:          s.cfg.PongTimeout,
		OutboxSize:           s.cfg.ConnectionOutboxSize,
	})

	reason := conn.Serve()
	logrus.WithFields(logrus.Fields{"connection_id": conn.ID(), "close_reason": reason}).Debug("server: connection closed")
}

// Authenticate implements connection.Router. A user row is created on the
// first successful handshake for an identity the store has never seen;
// every later handshake finds the existing row and leaves it untouched.
func (s *Server) Authenticate(token string) (string, error) {
	userID, err := s.authenticator.Authenticate(token)
	if err != nil {
		return "", err
	}
	ctx := context.Background()
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("server: look up user %s: %w", userID, err)
		}
		if err := s.store.CreateUser(ctx, store.User{ID: userID, DisplayName: userID, CreatedAt: time.Now()}); err != nil {
			return "", fmt.Errorf("server: create user %s: %w", userID, err)
		}
	}
	return userID, nil
}

// Disconnect implements connection.Router: it tells the session the
// connection's user last attached to that the socket was lost.
func (s *Server) Disconnect(conn *connection.Connection) {
	userID := conn.UserID()
	if userID == "" {
		return
	}
	actor, ok := s.registry.ByUser(userID)
	if !ok {
		return
	}
	actor.Post(session.Message{Kind: session.MsgDetach, UserID: userID, Conn: conn, Voluntary: false})
}

// Dispatch implements connection.Router, validating and routing one
// post-auth frame to the session registry (create/join/resume) or to the
// owning Actor's inbox (everything else).
func (s *Server) Dispatch(conn *connection.Connection, env protocol.Envelope) error {
	userID := conn.UserID()

	switch env.Type {
	case protocol.TypePing:
		conn.Enqueue(encode(protocol.TypePong, struct{}{}))
		return nil

	case protocol.TypeCreateSess:
		return s.dispatchCreateSession(conn, userID, env)

	case protocol.TypeJoinSess:
		return s.dispatchJoinSession(conn, userID, env)

	case protocol.TypeResumeSync:
		return s.dispatchResumeSync(conn, userID, env)

	case protocol.TypeLeaveSess:
		actor, ok := s.registry.ByUser(userID)
		if !ok {
			conn.SendError(protocol.CodeSessionNotFound, "not attached to a session", 0, env.Seq)
			return nil
		}
		actor.Post(session.Message{Kind: session.MsgDetach, UserID: userID, Conn: conn, Voluntary: true})
		return nil

	case protocol.TypeReady:
		var p protocol.ReadyPayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			conn.SendError(protocol.CodeProtocol, err.Error(), 0, env.Seq)
			return nil
		}
		actor, ok := s.registry.ByUser(userID)
		if !ok {
			conn.SendError(protocol.CodeSessionNotFound, "not attached to a session", 0, env.Seq)
			return nil
		}
		actor.Post(session.Message{Kind: session.MsgReady, UserID: userID, Conn: conn, Seq: env.Seq, Ready: p.Ready})
		return nil

	case protocol.TypeIntent:
		return s.dispatchIntent(conn, userID, env)

	case protocol.TypeDMCommand:
		var p protocol.DMCommandPayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			conn.SendError(protocol.CodeProtocol, err.Error(), 0, env.Seq)
			return nil
		}
		if err := s.validator.ValidateDMCommand(p); err != nil {
			conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, env.Seq)
			return nil
		}
		actor, ok := s.registry.ByUser(userID)
		if !ok {
			conn.SendError(protocol.CodeSessionNotFound, "not attached to a session", 0, env.Seq)
			return nil
		}
		if !actor.Post(session.Message{Kind: session.MsgDMCommand, UserID: userID, Conn: conn, Seq: env.Seq, Command: p.Command, Args: p.Args}) {
			conn.SendError(protocol.CodeServerBusy, "session is overloaded", 0, env.Seq)
		}
		return nil

	case protocol.TypeChat:
		return s.dispatchChat(conn, userID, env)

	default:
		conn.SendError(protocol.CodeProtocol, fmt.Sprintf("unhandled frame type %q", env.Type), 0, env.Seq)
		return nil
	}
}

func (s *Server) dispatchCreateSession(conn *connection.Connection, userID string, env protocol.Envelope) error {
	var p protocol.CreateSessionPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		conn.SendError(protocol.CodeProtocol, err.Error(), 0, env.Seq)
		return nil
	}
	if err := s.validator.ValidateCreateSession(p); err != nil {
		conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, env.Seq)
		return nil
	}

	wireCfg := store.SessionConfig{
		MaxPlayers:         p.Config.MaxPlayers,
		TurnDeadlineSecond: p.Config.TurnDeadlineSecond,
		Difficulty:         p.Config.Difficulty,
	}

	actor, err := s.registry.Create(context.Background(), userID, wireCfg)
	if err != nil {
		logrus.WithError(err).Error("server: create session failed")
		conn.SendError(protocol.CodeServerBusy, "failed to create session", 0, env.Seq)
		return nil
	}

	conn.Enqueue(encode(protocol.TypeSessionCreated, protocol.SessionCreatedPayload{
		SessionID:  actor.ID(),
		InviteCode: actor.InviteCode(),
		Config:     p.Config,
	}))

	// The host is the session's first participant; Registry.Create leaves
	// posting their own attach to the caller (pkg/session doc comment).
	actor.Post(session.Message{Kind: session.MsgAttach, UserID: userID, Conn: conn, Seq: env.Seq})
	return nil
}

func (s *Server) dispatchJoinSession(conn *connection.Connection, userID string, env protocol.Envelope) error {
	var p protocol.JoinSessionPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		conn.SendError(protocol.CodeProtocol, err.Error(), 0, env.Seq)
		return nil
	}
	if err := s.validator.ValidateJoinSession(p); err != nil {
		conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, env.Seq)
		return nil
	}

	actor, ok := s.registry.ByInviteCode(p.InviteCode)
	if !ok {
		conn.SendError(protocol.CodeSessionNotFound, "no session with that invite code", 0, env.Seq)
		return nil
	}
	if !actor.Post(session.Message{Kind: session.MsgAttach, UserID: userID, Conn: conn, Seq: env.Seq, CharacterID: p.CharacterID}) {
		conn.SendError(protocol.CodeServerBusy, "session is overloaded", 0, env.Seq)
	}
	return nil
}

func (s *Server) dispatchResumeSync(conn *connection.Connection, userID string, env protocol.Envelope) error {
	var p protocol.ResumeSyncPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		conn.SendError(protocol.CodeProtocol, err.Error(), 0, env.Seq)
		return nil
	}
	actor, ok := s.registry.ByUser(userID)
	if !ok {
		conn.SendError(protocol.CodeSessionNotFound, "no session to resume", 0, env.Seq)
		return nil
	}
	if !actor.Post(session.Message{Kind: session.MsgAttach, UserID: userID, Conn: conn, Seq: env.Seq, LastSeenVersion: p.LastSeenVersion}) {
		conn.SendError(protocol.CodeServerBusy, "session is overloaded", 0, env.Seq)
	}
	return nil
}

func (s *Server) dispatchIntent(conn *connection.Connection, userID string, env protocol.Envelope) error {
	var p protocol.IntentPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		conn.SendError(protocol.CodeProtocol, err.Error(), 0, env.Seq)
		return nil
	}
	if err := s.validator.ValidateIntent(p); err != nil {
		conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, env.Seq)
		return nil
	}
	actor, ok := s.registry.ByUser(userID)
	if !ok {
		conn.SendError(protocol.CodeSessionNotFound, "not attached to a session", 0, env.Seq)
		return nil
	}
	action := game.Action{
		Kind:         game.ActionKind(p.Action.Kind),
		UnitID:       p.Action.UnitID,
		Target:       p.Action.Target,
		TargetUnitID: p.Action.TargetID,
	}
	if !actor.Post(session.Message{Kind: session.MsgIntent, UserID: userID, Conn: conn, Seq: env.Seq, Action: action}) {
		conn.SendError(protocol.CodeServerBusy, "session is overloaded", 0, env.Seq)
	}
	return nil
}

func (s *Server) dispatchChat(conn *connection.Connection, userID string, env protocol.Envelope) error {
	var p protocol.ChatPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		conn.SendError(protocol.CodeProtocol, err.Error(), 0, env.Seq)
		return nil
	}
	text, err := s.validator.ValidateChat(p)
	if err != nil {
		conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, env.Seq)
		return nil
	}
	actor, ok := s.registry.ByUser(userID)
	if !ok {
		conn.SendError(protocol.CodeSessionNotFound, "not attached to a session", 0, env.Seq)
		return nil
	}
	entry := session.ChatEntry{
		Author:    userID,
		Kind:      session.ChatKind(p.Kind),
		Recipient: p.Recipient,
		Text:      text,
		Timestamp: time.Now(),
	}
	if !actor.Post(session.Message{Kind: session.MsgChat, UserID: userID, Conn: conn, Seq: env.Seq, Chat: entry}) {
		conn.SendError(protocol.CodeServerBusy, "session is overloaded", 0, env.Seq)
	}
	return nil
}

// Serve builds the middleware stack around ServeHTTP and blocks until
// listener closes or Shutdown is called. Middleware order, outermost
// first: recovery, request id, logging, rate limit, request size limit,
// CORS -- panics and request ids must wrap everything else,
// and the size limit must apply before any body is read.
func (s *Server) Serve(listener net.Listener) error {
	var handler http.Handler = s
	handler = CORSMiddleware(s.cfg)(handler)
	handler = RequestSizeLimitMiddleware(s.cfg.MaxRequestSize)(handler)
	handler = RateLimitMiddleware(s.httpLimiter)(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpSrv = &http.Server{
		Handler:      handler,
		ReadTimeout:  s.cfg.RequestTimeout,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	logrus.WithField("addr", listener.Addr().String()).Info("server: listening")
	err := s.httpSrv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections, waits up to cfg.ShutdownTimeout
// for in-flight requests to drain, and releases background resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()

	if s.httpLimiter != nil {
		s.httpLimiter.Close()
	}
	s.registry.Close()

	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func encode(typ protocol.Type, payload interface{}) protocol.Envelope {
	env, err := protocol.Encode(typ, payload, 0, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).Error("server: failed to encode outbound envelope")
		return protocol.Envelope{Type: typ, TS: time.Now().UnixMilli()}
	}
	return env
}
