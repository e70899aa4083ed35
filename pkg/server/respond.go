package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/medquery/medquery/pkg/chat"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps orchestrator failures to HTTP statuses. A bad mode is
// the caller's fault; everything else is a service-side failure.
func statusFor(err error) int {
	var modeErr *chat.UnsupportedModeError
	if errors.As(err, &modeErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
