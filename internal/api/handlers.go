package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// startSessionHandler handles POST /sessions.
func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.startSessionHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.startSessionHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.startSessionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	out, err := s.engine.Start(r.Context(), req.UserID, req.SessionID)
	if err != nil {
		writeEngineError(w, "startSessionHandler", req.SessionID, err)
		return
	}
	slog.Info("Server.startSessionHandler: session started", "sessionID", out.SessionID, "userID", req.UserID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Session started", out))
}

// turnHandler handles POST /sessions/{id}/turns.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("Server.turnHandler invoked", "sessionID", sessionID)

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: invalid JSON", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.turnHandler: validation failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	out, err := s.engine.Turn(r.Context(), sessionID, req.UserInput)
	if err != nil {
		writeEngineError(w, "turnHandler", sessionID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

// undoHandler handles POST /sessions/{id}/undo.
func (s *Server) undoHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("Server.undoHandler invoked", "sessionID", sessionID)

	out, err := s.engine.Undo(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, "undoHandler", sessionID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sc, err := s.engine.Get(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, "getSessionHandler", sessionID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sc))
}

// abandonSessionHandler handles DELETE /sessions/{id}.
func (s *Server) abandonSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("Server.abandonSessionHandler invoked", "sessionID", sessionID)

	if err := s.engine.Abandon(r.Context(), sessionID); err != nil {
		writeEngineError(w, "abandonSessionHandler", sessionID, err)
		return
	}
	slog.Info("Server.abandonSessionHandler: session abandoned", "sessionID", sessionID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session abandoned", nil))
}

// usageHandler handles GET /sessions/{id}/usage.
func (s *Server) usageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if s.usage == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Assistance is not enabled"))
		return
	}

	stats, err := s.usage.Usage(sessionID)
	if err != nil {
		slog.Error("Server.usageHandler: usage lookup failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read usage"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// healthHandler handles GET /healthz.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{
		"activeSessions": s.engine.ActiveSessions(),
	}))
}
