package embedders

import (
	"context"
	"strings"
	"testing"

	"github.com/medquery/medquery/pkg/config"
)

type mockEmbedder struct {
	dimension int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, m.dimension), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, m.dimension)
	}
	return out, nil
}

func (m *mockEmbedder) GetDimension() int    { return m.dimension }
func (m *mockEmbedder) GetModelName() string { return "mock" }
func (m *mockEmbedder) Close() error         { return nil }

func TestEmbedderRegistry_RegisterAndGet(t *testing.T) {
	registry := NewEmbedderRegistry()

	embedder := &mockEmbedder{dimension: 8}
	if err := registry.RegisterEmbedder("default", embedder); err != nil {
		t.Fatalf("RegisterEmbedder() error = %v", err)
	}

	got, err := registry.GetEmbedder("default")
	if err != nil {
		t.Fatalf("GetEmbedder() error = %v", err)
	}
	if got.GetDimension() != 8 {
		t.Errorf("GetDimension() = %d, want 8", got.GetDimension())
	}
}

func TestEmbedderRegistry_RegisterEmbedder_Invalid(t *testing.T) {
	registry := NewEmbedderRegistry()

	if err := registry.RegisterEmbedder("", &mockEmbedder{}); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := registry.RegisterEmbedder("default", nil); err == nil {
		t.Error("Expected error for nil provider")
	}
}

func TestEmbedderRegistry_GetEmbedder_NotFound(t *testing.T) {
	registry := NewEmbedderRegistry()

	_, err := registry.GetEmbedder("missing")
	if err == nil {
		t.Error("Expected error for missing embedder")
	}
}

func TestEmbedderRegistry_CreateEmbedderFromConfig(t *testing.T) {
	registry := NewEmbedderRegistry()

	embedder, err := registry.CreateEmbedderFromConfig("default", &config.EmbedderConfig{
		Provider: config.EmbedderProviderOpenAI,
		APIKey:   "sk-test",
	})
	if err != nil {
		t.Fatalf("CreateEmbedderFromConfig() error = %v", err)
	}
	if embedder == nil {
		t.Fatal("CreateEmbedderFromConfig() returned nil")
	}

	if _, err := registry.GetEmbedder("default"); err != nil {
		t.Errorf("GetEmbedder() after create error = %v", err)
	}
}

func TestEmbedderRegistry_CreateEmbedderFromConfig_Unsupported(t *testing.T) {
	registry := NewEmbedderRegistry()

	_, err := registry.CreateEmbedderFromConfig("default", &config.EmbedderConfig{
		Provider: "cohere",
		APIKey:   "key",
	})
	if err == nil {
		t.Fatal("Expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "unsupported embedder provider") {
		t.Errorf("Error = %v, want unsupported embedder provider", err)
	}
}
