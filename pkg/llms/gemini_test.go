package llms

import (
	"testing"

	"google.golang.org/genai"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/protocol"
)

func TestNewGeminiProviderFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LLMConfig
		wantErr bool
	}{
		{
			name: "valid configuration",
			cfg: &config.LLMConfig{
				Provider: config.LLMProviderGemini,
				Model:    "gemini-2.0-flash",
				APIKey:   "test-key",
			},
		},
		{
			name: "missing api key",
			cfg: &config.LLMConfig{
				Provider: config.LLMProviderGemini,
				Model:    "gemini-2.0-flash",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewGeminiProviderFromConfig(tt.cfg)

			if tt.wantErr {
				if err == nil {
					t.Error("NewGeminiProviderFromConfig() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("NewGeminiProviderFromConfig() error = %v", err)
			}
			if provider == nil {
				t.Fatal("NewGeminiProviderFromConfig() returned nil provider")
			}
			if provider.GetModelName() != "gemini-2.0-flash" {
				t.Errorf("GetModelName() = %v, want gemini-2.0-flash", provider.GetModelName())
			}
		})
	}
}

func TestGeminiProvider_BuildContents(t *testing.T) {
	provider := &GeminiProvider{config: &config.LLMConfig{Model: "gemini-2.0-flash"}}

	messages := []protocol.Message{
		protocol.CreateUserMessage("What is ibuprofen?"),
		protocol.CreateAssistantMessage("Ibuprofen is an NSAID."),
		protocol.CreateUserMessage("Is it safe with aspirin?"),
	}

	contents := provider.buildContents(messages)

	if len(contents) != 3 {
		t.Fatalf("buildContents() length = %d, want 3", len(contents))
	}

	// Assistant turns map to the model role.
	wantRoles := []string{"user", "model", "user"}
	for i, want := range wantRoles {
		if contents[i].Role != want {
			t.Errorf("contents[%d].Role = %v, want %v", i, contents[i].Role, want)
		}
	}

	if len(contents[0].Parts) != 1 || contents[0].Parts[0].Text != "What is ibuprofen?" {
		t.Errorf("contents[0] text = %v, want What is ibuprofen?", contents[0].Parts[0].Text)
	}
}

func TestGeminiProvider_BuildConfig(t *testing.T) {
	temp := 0.3
	provider := &GeminiProvider{config: &config.LLMConfig{
		Model:       "gemini-2.0-flash",
		Temperature: &temp,
		MaxTokens:   500,
	}}

	cfg := provider.buildConfig("You are a medical assistant.", nil)

	if cfg.SystemInstruction == nil {
		t.Fatal("Expected system instruction to be set")
	}
	if cfg.SystemInstruction.Parts[0].Text != "You are a medical assistant." {
		t.Errorf("SystemInstruction text = %v", cfg.SystemInstruction.Parts[0].Text)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 500 {
		t.Errorf("MaxOutputTokens = %v, want 500", cfg.MaxOutputTokens)
	}
	if len(cfg.Tools) != 0 {
		t.Errorf("Expected no tools, got %d", len(cfg.Tools))
	}
}

func TestGeminiProvider_BuildConfig_NoSystem(t *testing.T) {
	provider := &GeminiProvider{config: &config.LLMConfig{Model: "gemini-2.0-flash"}}

	cfg := provider.buildConfig("", nil)

	if cfg.SystemInstruction != nil {
		t.Error("Expected nil system instruction for empty system prompt")
	}
}

func TestBuildGeminiTools(t *testing.T) {
	tools := []protocol.ToolSchema{
		{
			Name:        "web_search",
			Description: "Search the web",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
					"num_results": map[string]any{
						"type": "integer",
					},
				},
				"required": []any{"query"},
			},
		},
	}

	genaiTools := buildGeminiTools(tools)

	if len(genaiTools) != 1 {
		t.Fatalf("buildGeminiTools() length = %d, want 1", len(genaiTools))
	}

	decl := genaiTools[0].FunctionDeclarations[0]
	if decl.Name != "web_search" {
		t.Errorf("Name = %v, want web_search", decl.Name)
	}
	if decl.Description != "Search the web" {
		t.Errorf("Description = %v, want Search the web", decl.Description)
	}
	if decl.Parameters == nil {
		t.Fatal("Expected parameters schema")
	}
	if decl.Parameters.Type != genai.Type("object") {
		t.Errorf("Parameters.Type = %v, want object", decl.Parameters.Type)
	}
	if _, ok := decl.Parameters.Properties["query"]; !ok {
		t.Error("Expected query property in schema")
	}
	if len(decl.Parameters.Required) != 1 || decl.Parameters.Required[0] != "query" {
		t.Errorf("Required = %v, want [query]", decl.Parameters.Required)
	}
}

func TestToGenaiSchema_Nested(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filters": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
					"enum": []any{"title", "content"},
				},
			},
		},
	}

	got := toGenaiSchema(schema)

	filters, ok := got.Properties["filters"]
	if !ok {
		t.Fatal("Expected filters property")
	}
	if filters.Items == nil {
		t.Fatal("Expected items schema for array property")
	}
	if len(filters.Items.Enum) != 2 {
		t.Errorf("Enum length = %d, want 2", len(filters.Items.Enum))
	}
}

func TestToGenaiSchema_Nil(t *testing.T) {
	if got := toGenaiSchema(nil); got != nil {
		t.Errorf("toGenaiSchema(nil) = %v, want nil", got)
	}
}
