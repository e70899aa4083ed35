package server

import (
	"net/http"

	"github.com/medquery/medquery"
)

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Providers  int    `json:"providers"`
	MCPServers int    `json:"mcp_servers"`
}

// handleHealth serves GET /api/health with a component summary.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := healthResponse{
		Status:  "healthy",
		Version: medquery.Version,
	}
	if s.deps.LLMs != nil {
		health.Providers = s.deps.LLMs.Count()
	}
	if s.deps.Servers != nil {
		health.MCPServers = s.deps.Servers.Count()
	}
	writeJSON(w, http.StatusOK, health)
}
