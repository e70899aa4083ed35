package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/medquery/medquery/pkg/protocol"
)

// handleChat serves POST /api/chat. The request's stream flag selects
// between one JSON response and an SSE stream of typed events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Mode == "" {
		req.Mode = protocol.ModeAsk
	}

	if !req.Stream {
		response, err := s.deps.Chat.Handle(r.Context(), req)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	// Validation failures surface synchronously, before any SSE
	// headers are written.
	events, err := s.deps.Chat.HandleStream(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	encoder := protocol.NewEventEncoder(w)
	for event := range events {
		if err := encoder.Encode(event); err != nil {
			slog.Debug("Chat stream write failed, draining", "error", err)
			// The producer stops on the request context; consume what
			// it has in flight so it can exit.
			for range events {
			}
			return
		}
	}
}
