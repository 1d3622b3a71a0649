package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ShiftGuide/internal/flow"
	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so an encoding failure can still change the status code.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// engineErrorStatus maps an engine error to an HTTP status code.
func engineErrorStatus(err error) int {
	var routing *flow.RoutingError
	switch {
	case errors.As(err, &routing):
		return http.StatusInternalServerError
	case errors.Is(err, flow.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrSessionComplete), errors.Is(err, flow.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, flow.ErrNothingToUndo), errors.Is(err, flow.ErrInputRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with its mapped status. Internal failures get a generic message.
func writeEngineError(w http.ResponseWriter, handler string, sessionID string, err error) {
	status := engineErrorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Server."+handler+": engine failed", "sessionID", sessionID, "error", err)
		writeJSONResponse(w, status, models.Error("Failed to process session"))
		return
	}
	slog.Warn("Server."+handler+": request refused", "sessionID", sessionID, "error", err)
	writeJSONResponse(w, status, models.Error(err.Error()))
}
