package server

import (
	"encoding/json"
	"net/http"

	"github.com/medquery/medquery/pkg/protocol"
	"github.com/medquery/medquery/pkg/rag"
)

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type searchResponse struct {
	Query     string            `json:"query"`
	Sources   []protocol.Source `json:"sources"`
	TotalHits int               `json:"total_hits"`
}

// handleRAGSearch serves POST /api/rag/search: direct retrieval
// without generation, returning the projected sources.
func (s *Server) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	docs, err := s.deps.Search.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed: "+err.Error())
		return
	}

	sources := rag.Project(docs)
	writeJSON(w, http.StatusOK, searchResponse{
		Query:     req.Query,
		Sources:   sources,
		TotalHits: len(sources),
	})
}
