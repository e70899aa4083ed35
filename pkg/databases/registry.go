// Package databases provides the vector store backends behind retrieval:
// chromem (embedded, the zero-config default), qdrant (gRPC), and
// pinecone. Backends are selected by config type and tracked by name.
package databases

import (
	"context"
	"fmt"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/registry"
)

type DatabaseProvider interface {
	// Upsert stores a vector with its metadata, creating the collection
	// on first use where the backend supports it.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search returns the topK most similar entries, best first.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)

	// SearchWithFilter restricts similarity search to entries whose
	// metadata matches the filter.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error)

	Delete(ctx context.Context, collection string, id string) error

	CreateCollection(ctx context.Context, collection string, vectorSize uint64) error

	Close() error
}

// SearchResult is one scored hit from a vector store.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Content  string         `json:"content"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

type DatabaseRegistry struct {
	*registry.BaseRegistry[DatabaseProvider]
}

func NewDatabaseRegistry() *DatabaseRegistry {
	return &DatabaseRegistry{
		BaseRegistry: registry.NewBaseRegistry[DatabaseProvider](),
	}
}

func (r *DatabaseRegistry) RegisterDatabase(name string, provider DatabaseProvider) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("database provider cannot be nil")
	}
	return r.Register(name, provider)
}

func (r *DatabaseRegistry) CreateDatabaseFromConfig(name string, cfg *config.DatabaseConfig) (DatabaseProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	var provider DatabaseProvider
	var err error

	switch cfg.Type {
	case config.DatabaseTypeChromem:
		provider, err = NewChromemDatabaseProviderFromConfig(cfg)
	case config.DatabaseTypeQdrant:
		provider, err = NewQdrantDatabaseProviderFromConfig(cfg)
	case config.DatabaseTypePinecone:
		provider, err = NewPineconeDatabaseProviderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: chromem, qdrant, pinecone)", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create database provider: %w", err)
	}

	if err := r.RegisterDatabase(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register database: %w", err)
	}

	return provider, nil
}

func (r *DatabaseRegistry) GetDatabase(name string) (DatabaseProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("database provider '%s' not found", name)
	}
	return provider, nil
}
