package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/mcp"
)

type registerServerRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Transport   string   `json:"transport,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"`
	Command     string   `json:"command,omitempty"`
	Args        []string `json:"args,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
}

type serverToolsResponse struct {
	ServerID string               `json:"server_id"`
	Tools    []mcp.ToolDescriptor `json:"tools"`
	Count    int                  `json:"count"`
}

func (s *Server) requireServers(w http.ResponseWriter) bool {
	if s.deps.Servers == nil {
		writeError(w, http.StatusServiceUnavailable, "MCP server registry is not configured")
		return false
	}
	return true
}

// handleListServers serves GET /api/mcp/servers.
func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	if !s.requireServers(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Servers.List())
}

// handleRegisterServer serves POST /api/mcp/servers. Tool discovery
// runs right after registration; a discovery failure is logged, not
// returned, so unreachable servers can still be registered up front.
func (s *Server) handleRegisterServer(w http.ResponseWriter, r *http.Request) {
	if !s.requireServers(w) {
		return
	}

	var req registerServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	record, err := s.deps.Servers.Register(mcp.ServerRecord{
		Name:        req.Name,
		Description: req.Description,
		Transport:   config.MCPTransport(req.Transport),
		BaseURL:     req.BaseURL,
		Command:     req.Command,
		Args:        req.Args,
		APIKey:      req.APIKey,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if tools, err := s.deps.Servers.DiscoverTools(r.Context(), record.ID); err != nil {
		slog.Warn("Tool discovery failed after registration",
			"server", record.Name,
			"error", err)
	} else {
		record.Tools = tools
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleRemoveServer serves DELETE /api/mcp/servers/{id}.
func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	if !s.requireServers(w) {
		return
	}
	if err := s.deps.Servers.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Server removed successfully"})
}

// handleActivateServer serves POST /api/mcp/servers/{id}/activate.
func (s *Server) handleActivateServer(w http.ResponseWriter, r *http.Request) {
	if !s.requireServers(w) {
		return
	}
	if err := s.deps.Servers.Activate(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Server activated successfully"})
}

// handleDeactivateServer serves POST /api/mcp/servers/{id}/deactivate.
func (s *Server) handleDeactivateServer(w http.ResponseWriter, r *http.Request) {
	if !s.requireServers(w) {
		return
	}
	if err := s.deps.Servers.Deactivate(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Server deactivated successfully"})
}

// handleServerTools serves GET /api/mcp/servers/{id}/tools, returning
// the tools recorded at registration or the last discovery.
func (s *Server) handleServerTools(w http.ResponseWriter, r *http.Request) {
	if !s.requireServers(w) {
		return
	}

	id := chi.URLParam(r, "id")
	record, err := s.deps.Servers.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	tools := record.Tools
	if tools == nil {
		tools = []mcp.ToolDescriptor{}
	}
	writeJSON(w, http.StatusOK, serverToolsResponse{
		ServerID: record.ID,
		Tools:    tools,
		Count:    len(tools),
	})
}
