package databases

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/medquery/medquery/pkg/config"
)

// pineconeDatabaseProvider stores vectors in a Pinecone serverless
// index. Collections map to Pinecone namespaces within the single
// configured index, so one index serves every document store.
type pineconeDatabaseProvider struct {
	client *pinecone.Client
	config *config.DatabaseConfig

	mu          sync.Mutex
	connections map[string]*pinecone.IndexConnection
}

func NewPineconeDatabaseProviderFromConfig(cfg *config.DatabaseConfig) (DatabaseProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}
	if cfg.IndexHost == "" {
		return nil, fmt.Errorf("index host is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &pineconeDatabaseProvider{
		client:      client,
		config:      cfg,
		connections: make(map[string]*pinecone.IndexConnection),
	}, nil
}

// getConnection returns a cached index connection for the namespace,
// dialing the configured index host on first use.
func (db *pineconeDatabaseProvider) getConnection(namespace string) (*pinecone.IndexConnection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if conn, ok := db.connections[namespace]; ok {
		return conn, nil
	}

	conn, err := db.client.Index(pinecone.NewIndexConnParams{
		Host:      db.config.IndexHost,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Pinecone index: %w", err)
	}

	db.connections[namespace] = conn
	return conn, nil
}

func (db *pineconeDatabaseProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	conn, err := db.getConnection(collection)
	if err != nil {
		return err
	}

	pcMetadata, err := toPineconeMetadata(metadata)
	if err != nil {
		return err
	}

	vectors := []*pinecone.Vector{
		{
			Id:       id,
			Values:   vector,
			Metadata: pcMetadata,
		},
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	return nil
}

func (db *pineconeDatabaseProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return db.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (db *pineconeDatabaseProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	conn, err := db.getConnection(collection)
	if err != nil {
		return nil, err
	}

	request := &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
		IncludeValues:   false,
	}

	if len(filter) > 0 {
		metadataFilter, err := structpb.NewStruct(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to build metadata filter: %w", err)
		}
		request.MetadataFilter = metadataFilter
	}

	response, err := conn.QueryByVectorValues(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(response.Matches))
	for _, match := range response.Matches {
		if match.Vector == nil {
			continue
		}

		var metadata map[string]any
		if match.Vector.Metadata != nil {
			metadata = match.Vector.Metadata.AsMap()
		} else {
			metadata = make(map[string]any)
		}

		content := ""
		if c, ok := metadata["content"].(string); ok {
			content = c
		}

		results = append(results, SearchResult{
			ID:       match.Vector.Id,
			Score:    match.Score,
			Content:  content,
			Metadata: metadata,
		})
	}

	return results, nil
}

func (db *pineconeDatabaseProvider) Delete(ctx context.Context, collection string, id string) error {
	conn, err := db.getConnection(collection)
	if err != nil {
		return err
	}

	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}

	return nil
}

// CreateCollection is a no-op: Pinecone namespaces come into existence
// on first upsert and the index itself is provisioned out of band.
func (db *pineconeDatabaseProvider) CreateCollection(ctx context.Context, collection string, vectorSize uint64) error {
	return nil
}

func (db *pineconeDatabaseProvider) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var firstErr error
	for namespace, conn := range db.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection for namespace %q: %w", namespace, err)
		}
	}
	db.connections = make(map[string]*pinecone.IndexConnection)

	return firstErr
}

// toPineconeMetadata converts metadata to the protobuf struct Pinecone
// expects. Values outside the JSON type set are rendered as strings.
func toPineconeMetadata(metadata map[string]any) (*pinecone.Metadata, error) {
	if len(metadata) == 0 {
		return nil, nil
	}

	converted, err := structpb.NewStruct(metadata)
	if err != nil {
		fallback := make(map[string]any, len(metadata))
		for k, v := range metadata {
			fallback[k] = fmt.Sprint(v)
		}
		converted, err = structpb.NewStruct(fallback)
		if err != nil {
			return nil, fmt.Errorf("failed to convert metadata: %w", err)
		}
	}

	return converted, nil
}
