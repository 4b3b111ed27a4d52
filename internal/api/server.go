package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sessionhub/internal/session"
	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// StatsProvider reports connection statistics for the health endpoint
type StatsProvider interface {
	Stats() map[string]int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as a read-only window into
// the coordination state - all mutation goes through the WebSocket protocol,
// so the two surfaces can never disagree about who is allowed to do what
type Server struct {
	registry *session.Registry
	eventLog interfaces.EventLog
	stats    StatsProvider
	router   *http.ServeMux
}

// NewServer creates the API server with its dependencies injected
func NewServer(registry *session.Registry, eventLog interfaces.EventLog, stats StatsProvider) *Server {
	s := &Server{
		registry: registry,
		eventLog: eventLog,
		stats:    stats,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

// Route setup with CORS and JSON middleware applied to all routes
func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler for integration with the standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response types for JSON serialization
type ListSessionsResponse struct {
	Sessions []types.SessionInfo `json:"sessions"`
}

type SessionResponse struct {
	Session types.SessionInfo `json:"session"`
}

type SessionEventsResponse struct {
	SessionID string         `json:"session_id"`
	Events    []*types.Event `json:"events"`
	HasMore   bool           `json:"has_more"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	EventLog    string         `json:"event_log"`
	Sessions    int            `json:"sessions"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/sessions - list live sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := s.registry.Snapshot()
	infos := make([]types.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		// FUNCTIONAL DISCOVERY: the empty viewer id yields is_owner=false for
		// anonymous HTTP callers without a special-cased snapshot path
		infos = append(infos, sess.Snapshot(""))
	}

	json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: infos})
}

// Handle GET /api/sessions/{id} and GET /api/sessions/{id}/events
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")
	sessionID := parts[0]
	if sessionID == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	if len(parts) > 1 && parts[1] == "events" {
		s.getSessionEvents(w, r, sessionID)
		return
	}

	sess, exists := s.registry.Get(sessionID)
	if !exists {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{Session: sess.Snapshot("")})
}

// GET /api/sessions/{id}/events?before_seq=N&limit=M - paged history read
// for dashboards and debugging, same pagination semantics as the protocol
func (s *Server) getSessionEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, exists := s.registry.Get(sessionID)
	if !exists {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}

	beforeSeq := sess.CurrentSeq() + 1
	if raw := r.URL.Query().Get("before_seq"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.sendError(w, "Invalid before_seq", http.StatusBadRequest)
			return
		}
		beforeSeq = parsed
	}

	limit := types.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.sendError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	events, hasMore, err := s.eventLog.ReadBefore(ctx, sessionID, beforeSeq, types.ClampHistoryLimit(limit))
	if err != nil {
		s.sendError(w, "Failed to read events", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(SessionEventsResponse{
		SessionID: sessionID,
		Events:    events,
		HasMore:   hasMore,
	})
}

// GET /health - system health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	logStatus := "healthy"

	if err := s.eventLog.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		logStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		EventLog:    logStatus,
		Sessions:    s.registry.Len(),
		Connections: s.stats.Stats(),
	}

	// Return 503 if any component is unhealthy
	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
