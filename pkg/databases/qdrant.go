package databases

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/medquery/medquery/pkg/config"
)

// qdrantDatabaseProvider talks to a Qdrant server over gRPC. Collections
// are created lazily on first upsert with cosine distance.
type qdrantDatabaseProvider struct {
	client *qdrant.Client
	config *config.DatabaseConfig
}

func NewQdrantDatabaseProviderFromConfig(cfg *config.DatabaseConfig) (DatabaseProvider, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &qdrantDatabaseProvider{
		client: client,
		config: cfg,
	}, nil
}

func (db *qdrantDatabaseProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	exists, err := db.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}

	if !exists {
		if err := db.CreateCollection(ctx, collection, uint64(len(vector))); err != nil {
			return err
		}
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for k, v := range metadata {
		payload[k] = qdrant.NewValue(v)
	}

	points := []*qdrant.PointStruct{
		{
			Id:      pointIDFromString(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		},
	}

	_, err = db.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

func (db *qdrantDatabaseProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return db.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (db *qdrantDatabaseProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	searchPoints := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}

	if len(filter) > 0 {
		searchPoints.Filter = buildQdrantFilter(filter)
	}

	response, err := db.client.GetPointsClient().Search(ctx, searchPoints)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return convertQdrantResults(response.GetResult()), nil
}

func (db *qdrantDatabaseProvider) Delete(ctx context.Context, collection string, id string) error {
	_, err := db.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{pointIDFromString(id)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}

	return nil
}

func (db *qdrantDatabaseProvider) CreateCollection(ctx context.Context, collection string, vectorSize uint64) error {
	err := db.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", collection, err)
	}

	return nil
}

func (db *qdrantDatabaseProvider) Close() error {
	return db.client.Close()
}

// pointIDFromString maps document IDs to Qdrant point IDs. Qdrant only
// accepts UUIDs or unsigned integers, so UUID-shaped strings pass
// through and everything else is hashed into a numeric ID.
func pointIDFromString(id string) *qdrant.PointId {
	if isUUID(id) {
		return qdrant.NewID(id)
	}

	var hash uint64 = 14695981039346656037
	for _, b := range []byte(id) {
		hash ^= uint64(b)
		hash *= 1099511628211
	}

	return qdrant.NewIDNum(hash)
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
			if !isHex {
				return false
			}
		}
	}
	return true
}

func buildQdrantFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))

	for key, value := range filter {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(key, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(key, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(key, v))
		case float64:
			// Qdrant has no float match, use text match on the rendered value.
			conditions = append(conditions, qdrant.NewMatch(key, strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")))
		default:
			conditions = append(conditions, qdrant.NewMatch(key, fmt.Sprint(v)))
		}
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

func convertQdrantResults(points []*qdrant.ScoredPoint) []SearchResult {
	results := make([]SearchResult, 0, len(points))

	for _, point := range points {
		metadata := make(map[string]any, len(point.GetPayload()))
		for k, v := range point.GetPayload() {
			metadata[k] = qdrantValueToAny(v)
		}

		content := ""
		if c, ok := metadata["content"].(string); ok {
			content = c
		}

		var id string
		switch pid := point.GetId().GetPointIdOptions().(type) {
		case *qdrant.PointId_Uuid:
			id = pid.Uuid
		case *qdrant.PointId_Num:
			id = fmt.Sprintf("%d", pid.Num)
		}

		results = append(results, SearchResult{
			ID:       id,
			Score:    point.GetScore(),
			Content:  content,
			Metadata: metadata,
		})
	}

	return results
}

func qdrantValueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, 0, len(values))
		for _, item := range values {
			list = append(list, qdrantValueToAny(item))
		}
		return list
	default:
		return v.String()
	}
}
