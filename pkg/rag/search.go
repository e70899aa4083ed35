package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/databases"
	"github.com/medquery/medquery/pkg/embedders"
	"github.com/medquery/medquery/pkg/observability"
	"github.com/medquery/medquery/pkg/protocol"
)

// SearchService runs semantic retrieval: embed the query, search the
// vector store, drop hits under the score threshold, and map the rest
// to retrieved documents. The store returns hits best first and that
// order is preserved end to end.
type SearchService struct {
	config   *config.SearchConfig
	embedder embedders.EmbedderProvider
	database databases.DatabaseProvider
}

func NewSearchService(cfg *config.SearchConfig, embedder embedders.EmbedderProvider, database databases.DatabaseProvider) (*SearchService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("search config cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	return &SearchService{
		config:   cfg,
		embedder: embedder,
		database: database,
	}, nil
}

// Search retrieves the topK most similar documents for the query.
// A topK of zero or below falls back to the configured default.
func (s *SearchService) Search(ctx context.Context, query string, topK int) ([]protocol.RetrievedDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewSearchError("search", "validate", "query cannot be empty", "", nil)
	}
	if topK <= 0 {
		topK = s.config.TopK
	}

	startTime := time.Now()

	tracer := observability.GetTracer("medquery.rag")
	ctx, span := tracer.Start(ctx, observability.SpanRetrieval,
		trace.WithAttributes(
			attribute.String(observability.AttrCollection, s.config.Collection),
			attribute.Int("top_k", topK),
		),
	)
	defer span.End()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		searchErr := NewSearchError("embedder", "embed_query", "failed to embed query", query, err)
		span.RecordError(searchErr)
		span.SetStatus(codes.Error, searchErr.Error())
		s.recordMetrics(ctx, time.Since(startTime), 0, searchErr)
		return nil, searchErr
	}

	hits, err := s.database.Search(ctx, s.config.Collection, vector, topK)
	if err != nil {
		searchErr := NewSearchError("database", "search", "vector search failed", query, err)
		span.RecordError(searchErr)
		span.SetStatus(codes.Error, searchErr.Error())
		s.recordMetrics(ctx, time.Since(startTime), 0, searchErr)
		return nil, searchErr
	}

	docs := s.toDocuments(hits)

	span.SetAttributes(attribute.Int("results", len(docs)))
	span.SetStatus(codes.Ok, "")
	s.recordMetrics(ctx, time.Since(startTime), len(docs), nil)

	return docs, nil
}

// toDocuments converts store hits, dropping results under the
// configured threshold. Titles and URLs live in document metadata.
func (s *SearchService) toDocuments(hits []databases.SearchResult) []protocol.RetrievedDocument {
	docs := make([]protocol.RetrievedDocument, 0, len(hits))
	for _, hit := range hits {
		if s.config.Threshold > 0 && hit.Score < s.config.Threshold {
			continue
		}

		content := hit.Content
		if content == "" {
			content = metadataString(hit.Metadata, "content")
		}

		docs = append(docs, protocol.RetrievedDocument{
			ID:        hit.ID,
			Title:     metadataString(hit.Metadata, "title"),
			ChunkText: content,
			Score:     hit.Score,
			Metadata:  hit.Metadata,
			URL:       metadataString(hit.Metadata, "url"),
		})
	}
	return docs
}

func (s *SearchService) recordMetrics(ctx context.Context, duration time.Duration, results int, err error) {
	metrics := observability.GetGlobalMetrics()
	if metrics != nil {
		metrics.RecordRetrieval(ctx, s.config.Collection, duration, results, err)
	}
}
