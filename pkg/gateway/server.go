// Package gateway is the websocket transport for interview sessions: it
// upgrades client connections, validates control frames, forwards audio to
// the orchestration core, and delivers server events back to clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/prep-piper/piper/internal/observability"
	"github.com/prep-piper/piper/pkg/orchestrator"
	"github.com/prep-piper/piper/pkg/session"
)

// Core is the orchestration surface the transport drives
type Core interface {
	StartInterview(ctx context.Context, connectionID string, p orchestrator.StartParams) (session.Snapshot, error)
	Resume(connectionID, sessionID string) (session.Snapshot, error)
	PushAudio(sessionID string, chunk []byte)
	SubmitText(sessionID, text string) error
	EndInterview(sessionID string) error
	ConnectionLost(sessionID string)
}

// Config holds server configuration
type Config struct {
	Host string
	Port int
	// AudioDir, when set, is served read-only under /audio/
	AudioDir     string
	Core         Core
	Registry     *Registry
	SessionCount func() int
	Logger       zerolog.Logger
}

// Server is the websocket gateway
type Server struct {
	host         string
	port         int
	audioDir     string
	core         Core
	registry     *Registry
	sessionCount func() int
	logger       zerolog.Logger

	server         *http.Server
	upgrader       websocket.Upgrader
	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// NewServer creates the websocket gateway
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Core == nil {
		return nil, fmt.Errorf("orchestration core is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if cfg.SessionCount == nil {
		cfg.SessionCount = func() int { return 0 }
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		audioDir:     cfg.AudioDir,
		core:         cfg.Core,
		registry:     cfg.Registry,
		sessionCount: cfg.SessionCount,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}, nil
}

// Start starts the gateway. Non-blocking.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.audioDir != "" {
		mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(s.audioDir))))
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway")

	for _, conn := range s.registry.All() {
		conn.ws.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","activeSessions":%d,"connections":%d}`,
		s.sessionCount(), s.registry.Count())
}

// handleWebSocket upgrades the connection and runs its read loop
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	connID, _ := gonanoid.New()
	conn := &Conn{
		ID:          connID,
		ConnectedAt: time.Now(),
		ws:          ws,
	}
	s.registry.Add(conn)

	s.logger.Info().
		Str("connection_id", connID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.readLoop(conn)
}

// readLoop consumes frames until the connection drops
func (s *Server) readLoop(conn *Conn) {
	defer func() {
		conn.ws.Close()
		sessionID := s.registry.Remove(conn.ID)
		if sessionID != "" {
			s.core.ConnectionLost(sessionID)
		}
		s.logger.Info().Str("connection_id", conn.ID).Msg("Client disconnected")
	}()

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("connection_id", conn.ID).Msg("WebSocket error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(conn, data)
		case websocket.TextMessage:
			s.handleControl(conn, data)
		}
	}
}

// handleAudio forwards one audio chunk to the session bound to the
// connection. Audio before startInterview has nowhere to go and is dropped.
func (s *Server) handleAudio(conn *Conn, chunk []byte) {
	sessionID, ok := s.registry.SessionFor(conn.ID)
	if !ok {
		observability.RecordAudioChunkDropped("unbound_connection")
		return
	}
	s.core.PushAudio(sessionID, chunk)
}

// handleControl validates and dispatches one JSON control frame
func (s *Server) handleControl(conn *Conn, raw []byte) {
	msg, err := parseClientMessage(raw)
	if err != nil {
		s.logger.Warn().Str("connection_id", conn.ID).Err(err).Msg("Rejected control frame")
		s.sendError(conn, "", "invalid_frame", err.Error())
		return
	}

	switch msg.Type {
	case TypeStartInterview:
		s.handleStart(conn, msg)
	case TypeTextAnswer:
		s.handleTextAnswer(conn, msg)
	case TypeEndInterview:
		s.handleEnd(conn)
	case TypeResumeInterview:
		s.handleResume(conn, msg)
	}
}

func (s *Server) handleStart(conn *Conn, msg ClientMessage) {
	if existing, ok := s.registry.SessionFor(conn.ID); ok {
		s.sendError(conn, existing, "already_in_session", "This connection already serves an interview session.")
		return
	}

	snap, err := s.core.StartInterview(context.Background(), conn.ID, orchestrator.StartParams{
		TechStack:  msg.TechStack,
		Position:   msg.Position,
		Difficulty: msg.Difficulty,
	})
	if err != nil {
		s.logger.Error().Str("connection_id", conn.ID).Err(err).Msg("Interview start failed")
		s.sendError(conn, "", "start_failed", "Could not start the interview. Please try again.")
		return
	}

	s.registry.Bind(conn.ID, snap.ID)
}

func (s *Server) handleTextAnswer(conn *Conn, msg ClientMessage) {
	sessionID, ok := s.registry.SessionFor(conn.ID)
	if !ok {
		s.sendError(conn, "", "no_session", "No interview session on this connection.")
		return
	}

	if err := s.core.SubmitText(sessionID, msg.Text); err != nil {
		s.sendError(conn, sessionID, "answer_rejected", "The answer cannot be accepted right now.")
	}
}

func (s *Server) handleEnd(conn *Conn) {
	sessionID, ok := s.registry.SessionFor(conn.ID)
	if !ok {
		s.sendError(conn, "", "no_session", "No interview session on this connection.")
		return
	}

	if err := s.core.EndInterview(sessionID); err != nil {
		s.logger.Warn().Str("session_id", sessionID).Err(err).Msg("End interview failed")
	}
}

func (s *Server) handleResume(conn *Conn, msg ClientMessage) {
	snap, err := s.core.Resume(conn.ID, msg.SessionID)
	if err != nil {
		s.logger.Warn().
			Str("connection_id", conn.ID).
			Str("session_id", msg.SessionID).
			Err(err).
			Msg("Resume failed")
		s.sendError(conn, msg.SessionID, "resume_failed", "The session is no longer available.")
		return
	}

	if evicted := s.registry.Bind(conn.ID, snap.ID); evicted != "" {
		s.logger.Info().
			Str("session_id", snap.ID).
			Str("evicted_connection_id", evicted).
			Str("connection_id", conn.ID).
			Msg("Session rebound to new connection")
	}

	// replay the current question so the client can pick up mid-interview
	if err := conn.WriteJSON(ServerMessage{
		Type:      TypeInterviewStarted,
		SessionID: snap.ID,
		Question:  lastInterviewerLine(snap),
	}); err != nil {
		s.logger.Warn().Str("connection_id", conn.ID).Err(err).Msg("Resume replay failed")
	}
}

func (s *Server) sendError(conn *Conn, sessionID, code, message string) {
	err := conn.WriteJSON(ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	})
	if err != nil {
		s.logger.Warn().Str("connection_id", conn.ID).Err(err).Msg("Failed to send error frame")
	}
}

// lastInterviewerLine returns the most recent committed interviewer text
func lastInterviewerLine(snap session.Snapshot) string {
	for i := len(snap.Transcript) - 1; i >= 0; i-- {
		if snap.Transcript[i].Speaker == session.SpeakerInterviewer {
			return snap.Transcript[i].Text
		}
	}
	return ""
}
