package component

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medquery/medquery/pkg/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		LLMs: map[string]*config.LLMConfig{
			"default": {Provider: config.LLMProviderOpenAI, APIKey: "test-key"},
		},
		Embedders: map[string]*config.EmbedderConfig{
			"default": {Provider: config.EmbedderProviderOpenAI, APIKey: "test-key"},
		},
		Databases: map[string]*config.DatabaseConfig{
			"default": {Type: config.DatabaseTypeChromem},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestNewComponentManager_BuildsAllComponents(t *testing.T) {
	cfg := testConfig()
	cfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "pubmed-mcp", Transport: config.MCPTransportHTTP, BaseURL: "http://localhost:8010/mcp"},
	}

	cm, err := NewComponentManager(cfg)
	require.NoError(t, err)
	require.NotNil(t, cm)

	assert.Equal(t, 1, cm.GetLLMRegistry().Count())
	assert.Equal(t, 1, cm.GetEmbedderRegistry().Count())
	assert.Equal(t, 1, cm.GetDatabaseRegistry().Count())
	assert.NotNil(t, cm.GetSearchService())
	assert.NotNil(t, cm.GetDispatcher())
	assert.NotNil(t, cm.GetOrchestrator())
	assert.NotEmpty(t, cm.GetSchemaRegistry().List())
	assert.Same(t, cfg, cm.GetGlobalConfig())

	require.Equal(t, 1, cm.GetServerRegistry().Count())
	seeded := cm.GetServerRegistry().List()[0]
	assert.Equal(t, "pubmed-mcp", seeded.Name)
	assert.True(t, seeded.Active)

	llm, err := cm.GetLLM("default")
	require.NoError(t, err)
	assert.NotNil(t, llm)

	embedder, err := cm.GetEmbedder("default")
	require.NoError(t, err)
	assert.NotNil(t, embedder)

	database, err := cm.GetDatabase("default")
	require.NoError(t, err)
	assert.NotNil(t, database)

	require.NoError(t, cm.Close())
}

func TestNewComponentManager_NilConfig(t *testing.T) {
	cm, err := NewComponentManager(nil)
	require.Error(t, err)
	assert.Nil(t, cm)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestNewComponentManager_UnsupportedLLMProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLMs["default"].Provider = "watson"

	_, err := NewComponentManager(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize LLM 'default'")
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}

func TestNewComponentManager_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.LLMs["default"].APIKey = ""

	_, err := NewComponentManager(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNewComponentManager_SearchReferencesUnknownEmbedder(t *testing.T) {
	cfg := testConfig()
	cfg.Search.Embedder = "missing"

	_, err := NewComponentManager(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search references unknown embedder 'missing'")
}

func TestNewComponentManager_SearchReferencesUnknownDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Search.Database = "missing"

	_, err := NewComponentManager(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search references unknown database 'missing'")
}

func TestNewComponentManager_InvalidServerSeed(t *testing.T) {
	cfg := testConfig()
	cfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "broken", Transport: config.MCPTransportHTTP},
	}

	_, err := NewComponentManager(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register MCP server 'broken'")
}

func TestNewComponentManager_RegistersInstancesInNameOrder(t *testing.T) {
	cfg := testConfig()
	cfg.LLMs = map[string]*config.LLMConfig{
		"charlie": {Provider: config.LLMProviderOpenAI, APIKey: "test-key"},
		"alpha":   {Provider: config.LLMProviderOpenAI, APIKey: "test-key"},
		"bravo":   {Provider: config.LLMProviderOpenAI, APIKey: "test-key"},
	}
	cfg.SetDefaults()

	cm, err := NewComponentManager(cfg)
	require.NoError(t, err)
	defer cm.Close()

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, cm.GetLLMRegistry().Names())
}

// toolBackend speaks just enough JSON-RPC for initialize and tools/list.
// failListing makes tools/list return an RPC error in a 200 body, so the
// client fails fast without exercising HTTP retries.
func toolBackend(t *testing.T, failListing bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "initialize":
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"result": map[string]any{"protocolVersion": "2024-11-05"},
			})
		case "tools/list":
			if failListing {
				json.NewEncoder(w).Encode(map[string]any{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]any{"code": -32603, "message": "listing broke"},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"result": map[string]any{
					"tools": []map[string]any{
						{"name": "pubmed_search", "description": "Search PubMed"},
					},
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{},
			})
		}
	}))
}

func TestComponentManager_DiscoverTools(t *testing.T) {
	backend := toolBackend(t, false)
	defer backend.Close()

	cfg := testConfig()
	cfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "pubmed-mcp", Transport: config.MCPTransportHTTP, BaseURL: backend.URL},
	}

	cm, err := NewComponentManager(cfg)
	require.NoError(t, err)
	defer cm.Close()

	cm.DiscoverTools(context.Background())

	record := cm.GetServerRegistry().List()[0]
	require.Len(t, record.Tools, 1)
	assert.Equal(t, "pubmed_search", record.Tools[0].Name)
}

func TestComponentManager_DiscoverToolsSurvivesFailure(t *testing.T) {
	backend := toolBackend(t, true)
	defer backend.Close()

	cfg := testConfig()
	cfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "flaky-mcp", Transport: config.MCPTransportHTTP, BaseURL: backend.URL},
	}

	cm, err := NewComponentManager(cfg)
	require.NoError(t, err)
	defer cm.Close()

	cm.DiscoverTools(context.Background())

	record := cm.GetServerRegistry().List()[0]
	assert.Empty(t, record.Tools)
	assert.True(t, record.Active)
}
