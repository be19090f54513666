package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mhodzic/parley/internal/service"
	"github.com/mhodzic/parley/internal/transport/http/middleware"
)

type CallHandler struct {
	calls *service.CallService
	log   *slog.Logger
}

func NewCallHandler(calls *service.CallService, log *slog.Logger) *CallHandler {
	return &CallHandler{calls: calls, log: log}
}

// Start creates a meeting id and pushes an incoming-call notification to the
// callee's registered device.
func (h *CallHandler) Start(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())

	var input struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.UserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	result, err := h.calls.StartCall(r.Context(), callerID, input.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		case errors.Is(err, service.ErrCalleeUnreachable):
			writeError(w, http.StatusConflict, "UNREACHABLE", "User has no registered device")
		default:
			h.log.Error("start call failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
