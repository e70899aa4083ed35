// Package medquery is a multi-mode medical knowledge service.
//
// MedQuery answers medical questions through three modes: direct
// generation (ask), retrieval-augmented generation over a vector store
// (rag), and tool-calling rounds against registered MCP servers
// (agent). Everything is driven by a declarative YAML configuration
// with named provider instances.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/medquery/medquery/cmd/medquery@latest
//
// Create a configuration:
//
//	llms:
//	  openai:
//	    provider: openai
//	    model: gpt-4o-mini
//	    api_key: "${OPENAI_API_KEY}"
//
//	embedders:
//	  default:
//	    provider: openai
//	    model: text-embedding-3-small
//	    api_key: "${OPENAI_API_KEY}"
//
//	chat:
//	  default_provider: openai
//
// Start the server:
//
//	medquery serve --config medquery.yaml
//
// # Using as Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/medquery/medquery/pkg/chat"
//	    "github.com/medquery/medquery/pkg/rag"
//	    "github.com/medquery/medquery/pkg/config"
//	)
//
// # Key Features
//
//   - Three chat modes over one HTTP surface, streaming or not
//   - Retrieval over chromem, Qdrant or Pinecone vector stores
//   - MCP tool servers over HTTP or stdio with per-category routing
//   - Declarative YAML config with env expansion and live reload
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Architecture
//
// Client → HTTP API → Orchestrator → LLM providers
//
//	                      ├→ Search service → Embedder → Vector store
//	                      └→ Tool dispatcher → MCP servers
//
// All orchestration is mode-driven: the request's mode selects the
// pipeline, and streaming requests receive typed SSE events ending in
// a terminal done frame.
package medquery
