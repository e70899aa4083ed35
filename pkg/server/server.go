// Package server exposes the MedQuery HTTP API: the multi-mode chat
// endpoint (JSON or SSE), direct retrieval, MCP server management and
// health. Routing is chi with request-id, recovery and observability
// middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/llms"
	"github.com/medquery/medquery/pkg/mcp"
	"github.com/medquery/medquery/pkg/observability"
	"github.com/medquery/medquery/pkg/protocol"
)

// ChatService serves chat requests. chat.Orchestrator implements it.
type ChatService interface {
	Handle(ctx context.Context, req protocol.Request) (*protocol.Response, error)
	HandleStream(ctx context.Context, req protocol.Request) (<-chan protocol.StreamEvent, error)
}

// Searcher serves direct retrieval requests. rag.SearchService
// implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]protocol.RetrievedDocument, error)
}

// Deps are the components the API surfaces. Chat is required; the
// others may be nil and their endpoints then report accordingly.
type Deps struct {
	Chat    ChatService
	Search  Searcher
	Servers *mcp.ServerRegistry
	LLMs    *llms.LLMRegistry
}

// Server is the HTTP API server.
type Server struct {
	config     *config.ServerConfig
	deps       Deps
	httpServer *http.Server
}

// New creates the server with its routes wired.
func New(cfg *config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Chat == nil {
		return nil, errors.New("chat service cannot be nil")
	}
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	cfg.SetDefaults()

	s := &Server{config: cfg, deps: deps}
	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging)
	r.Use(corsMiddleware)
	r.Use(observability.HTTPMiddleware(
		observability.GetTracer("medquery.http"),
		observability.GetGlobalMetrics(),
	))

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/rag/search", s.handleRAGSearch)
		r.Get("/health", s.handleHealth)

		r.Route("/mcp/servers", func(r chi.Router) {
			r.Get("/", s.handleListServers)
			r.Post("/", s.handleRegisterServer)
			r.Delete("/{id}", s.handleRemoveServer)
			r.Post("/{id}/activate", s.handleActivateServer)
			r.Post("/{id}/deactivate", s.handleDeactivateServer)
			r.Get("/{id}/tools", s.handleServerTools)
		})
	})

	return r
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "address", s.config.Address())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured shutdown
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}
