package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/httpclient"
	"github.com/medquery/medquery/pkg/protocol"
)

func TestNewOpenAIProvider(t *testing.T) {
	provider := NewOpenAIProvider("sk-test-key", "gpt-4o")

	if provider == nil {
		t.Fatal("NewOpenAIProvider() returned nil provider")
	}

	if provider.GetModelName() != "gpt-4o" {
		t.Errorf("NewOpenAIProvider() model = %v, want gpt-4o", provider.GetModelName())
	}

	if provider.GetMaxTokens() != 1000 {
		t.Errorf("NewOpenAIProvider() maxTokens = %v, want 1000", provider.GetMaxTokens())
	}

	if provider.GetTemperature() != 0.1 {
		t.Errorf("NewOpenAIProvider() temperature = %v, want 0.1", provider.GetTemperature())
	}
}

func TestNewOpenAIProviderFromConfig(t *testing.T) {
	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		APIKey:   "sk-test-key",
		Timeout:  30 * time.Second,
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v, want nil", err)
	}

	if provider == nil {
		t.Fatal("NewOpenAIProviderFromConfig() returned nil provider")
	}

	if provider.GetModelName() != "gpt-4o" {
		t.Errorf("NewOpenAIProviderFromConfig() model = %v, want gpt-4o", provider.GetModelName())
	}

	if provider.config.BaseURL != defaultOpenAIBaseURL {
		t.Errorf("NewOpenAIProviderFromConfig() baseURL = %v, want %v", provider.config.BaseURL, defaultOpenAIBaseURL)
	}
}

func TestNewOpenAIProviderFromConfig_MissingAPIKey(t *testing.T) {
	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
	}

	_, err := NewOpenAIProviderFromConfig(cfg)
	if err == nil {
		t.Error("NewOpenAIProviderFromConfig() expected error for missing API key, got nil")
	}
}

func TestOpenAIProvider_Close(t *testing.T) {
	provider := NewOpenAIProvider("sk-test-key", "gpt-4o")

	err := provider.Close()
	if err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestOpenAIProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}

		// Check authorization header
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer sk-test-key") {
			t.Errorf("Expected Bearer token, got %s", auth)
		}

		// Parse request body
		var req OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		if req.Model != "gpt-4o" {
			t.Errorf("Expected model gpt-4o, got %s", req.Model)
		}
		if len(req.Messages) != 1 {
			t.Errorf("Expected 1 message, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "user" {
			t.Errorf("Expected user role, got %s", req.Messages[0].Role)
		}

		// Send mock response
		response := OpenAIResponse{
			Choices: []Choice{
				{
					Message: OpenAIMessage{
						Role:    "assistant",
						Content: "Hello! How can I help you today?",
					},
					FinishReason: "stop",
				},
			},
			Usage: Usage{
				PromptTokens:     10,
				CompletionTokens: 15,
				TotalTokens:      25,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Hello"),
	}

	text, toolCalls, tokens, err := provider.Generate(context.Background(), "", messages, nil)

	if err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
	if text != "Hello! How can I help you today?" {
		t.Errorf("Generate() text = %v, want Hello! How can I help you today?", text)
	}
	if len(toolCalls) != 0 {
		t.Errorf("Generate() toolCalls length = %v, want 0", len(toolCalls))
	}
	if tokens != 25 {
		t.Errorf("Generate() tokens = %v, want 25", tokens)
	}
}

func TestOpenAIProvider_Generate_SystemPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		// The system prompt must arrive as the first message.
		if len(req.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("Expected system role first, got %s", req.Messages[0].Role)
		}
		if req.Messages[0].Content != "You are a medical assistant." {
			t.Errorf("Unexpected system content: %s", req.Messages[0].Content)
		}
		if req.Messages[1].Role != "user" {
			t.Errorf("Expected user role second, got %s", req.Messages[1].Role)
		}

		response := OpenAIResponse{
			Choices: []Choice{
				{
					Message:      OpenAIMessage{Role: "assistant", Content: "Understood."},
					FinishReason: "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("What is aspirin?"),
	}

	_, _, _, err = provider.Generate(context.Background(), "You are a medical assistant.", messages, nil)
	if err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
}

func TestOpenAIProvider_Generate_WithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		// Verify tools in request
		if len(req.Tools) != 1 {
			t.Errorf("Expected 1 tool, got %d", len(req.Tools))
		}
		if req.Tools[0].Function.Name != "web_search" {
			t.Errorf("Expected tool name web_search, got %s", req.Tools[0].Function.Name)
		}
		if req.ToolChoice != "auto" {
			t.Errorf("Expected tool_choice auto, got %s", req.ToolChoice)
		}

		// Send mock response with tool call
		response := OpenAIResponse{
			Choices: []Choice{
				{
					Message: OpenAIMessage{
						Role: "assistant",
						ToolCalls: []OpenAIToolCall{
							{
								ID:   "call_123",
								Type: "function",
								Function: OpenAIFunctionCall{
									Name:      "web_search",
									Arguments: `{"query": "aspirin interactions"}`,
								},
							},
						},
					},
					FinishReason: "tool_calls",
				},
			},
			Usage: Usage{
				PromptTokens:     20,
				CompletionTokens: 10,
				TotalTokens:      30,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Search for aspirin interactions"),
	}
	tools := []protocol.ToolSchema{
		{
			Name:        "web_search",
			Description: "Search the web",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
	}

	text, toolCalls, tokens, err := provider.Generate(context.Background(), "", messages, tools)

	if err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
	if text != "" {
		t.Errorf("Generate() text = %v, want empty", text)
	}
	if len(toolCalls) != 1 {
		t.Fatalf("Generate() toolCalls length = %v, want 1", len(toolCalls))
	}
	if toolCalls[0].FunctionName != "web_search" {
		t.Errorf("Generate() toolCall FunctionName = %v, want web_search", toolCalls[0].FunctionName)
	}
	if toolCalls[0].Arguments["query"] != "aspirin interactions" {
		t.Errorf("Generate() toolCall query = %v, want aspirin interactions", toolCalls[0].Arguments["query"])
	}
	if tokens != 30 {
		t.Errorf("Generate() tokens = %v, want 30", tokens)
	}
}

func TestOpenAIProvider_Generate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Hello"),
	}

	_, _, _, err = provider.Generate(context.Background(), "", messages, nil)

	if err == nil {
		t.Error("Generate() expected error, got nil")
	}
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`))
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-bad-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Hello"),
	}

	_, _, _, err = provider.Generate(context.Background(), "", messages, nil)

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Incorrect API key provided") {
		t.Errorf("Generate() error = %v, want API error message surfaced", err)
	}
}

func TestOpenAIProvider_Generate_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Hello"),
	}

	_, _, _, err = provider.Generate(context.Background(), "", messages, nil)

	if err == nil {
		t.Error("Generate() expected error, got nil")
	}
}

func TestOpenAIProvider_GenerateStreaming_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		if !req.Stream {
			t.Error("Expected stream=true in request")
		}

		w.Header().Set("Content-Type", "text/event-stream")

		chunks := []string{
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
			`data: {"choices":[{"delta":{"content":" there"}}]}`,
			`data: {"usage":{"prompt_tokens":10,"completion_tokens":8,"total_tokens":18}}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			"data: [DONE]",
		}

		for _, chunk := range chunks {
			_, _ = w.Write([]byte(chunk + "\n\n"))
		}
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Hello"),
	}

	ch, err := provider.GenerateStreaming(context.Background(), "", messages, nil)
	if err != nil {
		t.Fatalf("GenerateStreaming() error = %v, want nil", err)
	}

	// Collect chunks
	var chunks []StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}

	var text string
	var doneTokens int
	sawDone := false
	for _, chunk := range chunks {
		switch chunk.Type {
		case ChunkTypeText:
			text += chunk.Text
		case ChunkTypeDone:
			sawDone = true
			doneTokens = chunk.Tokens
		case ChunkTypeError:
			t.Errorf("Unexpected error chunk: %v", chunk.Error)
		}
	}

	if text != "Hello there" {
		t.Errorf("Streamed text = %q, want %q", text, "Hello there")
	}
	if !sawDone {
		t.Error("Expected done chunk, got none")
	}
	if doneTokens != 18 {
		t.Errorf("Done chunk tokens = %v, want 18", doneTokens)
	}
}

func TestOpenAIProvider_GenerateStreaming_ToolCallFragments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")

		// Arguments arrive split across deltas, joined by index.
		chunks := []string{
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"web_search","arguments":""}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"aspirin\"}"}}]}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			"data: [DONE]",
		}

		for _, chunk := range chunks {
			_, _ = w.Write([]byte(chunk + "\n\n"))
		}
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Search for aspirin"),
	}
	tools := []protocol.ToolSchema{
		{Name: "web_search", Description: "Search the web", Parameters: map[string]any{"type": "object"}},
	}

	ch, err := provider.GenerateStreaming(context.Background(), "", messages, tools)
	if err != nil {
		t.Fatalf("GenerateStreaming() error = %v, want nil", err)
	}

	var toolCall *protocol.ToolInvocationRequest
	for chunk := range ch {
		if chunk.Type == ChunkTypeToolCall {
			toolCall = chunk.ToolCall
		}
		if chunk.Type == ChunkTypeError {
			t.Errorf("Unexpected error chunk: %v", chunk.Error)
		}
	}

	if toolCall == nil {
		t.Fatal("Expected tool call chunk, got none")
	}
	if toolCall.FunctionName != "web_search" {
		t.Errorf("FunctionName = %v, want web_search", toolCall.FunctionName)
	}
	if toolCall.Arguments["query"] != "aspirin" {
		t.Errorf("Arguments query = %v, want aspirin", toolCall.Arguments["query"])
	}
}

func TestOpenAIProvider_GenerateStreaming_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []protocol.Message{
		protocol.CreateUserMessage("Hello"),
	}

	ch, err := provider.GenerateStreaming(context.Background(), "", messages, nil)
	if err != nil {
		return
	}

	// The failure has to surface as an error chunk before the channel closes.
	hasError := false
	for chunk := range ch {
		if chunk.Type == ChunkTypeError {
			hasError = true
		}
	}

	if !hasError {
		t.Error("GenerateStreaming() expected error chunk, got none")
	}
}

func TestOpenAIProvider_AzureAuthHeader(t *testing.T) {
	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4",
		BaseURL:  "https://myresource.openai.azure.com/openai/deployments/gpt-4",
		APIKey:   "azure-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	req, err := provider.newRequest(context.Background(), OpenAIRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("newRequest() error = %v", err)
	}

	if req.Header.Get("api-key") != "azure-key" {
		t.Errorf("Expected api-key header for Azure endpoint, got %q", req.Header.Get("api-key"))
	}
	if req.Header.Get("Authorization") != "" {
		t.Errorf("Expected no Authorization header for Azure endpoint, got %q", req.Header.Get("Authorization"))
	}
}

func TestOpenAIProvider_WithCustomHTTPClient(t *testing.T) {
	customClient := httpclient.New(
		httpclient.WithMaxRetries(1),
		httpclient.WithBaseDelay(100*time.Millisecond),
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := OpenAIResponse{
			Choices: []Choice{
				{
					Message: OpenAIMessage{
						Role:    "assistant",
						Content: "Hello from custom client!",
					},
					FinishReason: "stop",
				},
			},
			Usage: Usage{
				PromptTokens:     5,
				CompletionTokens: 8,
				TotalTokens:      13,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	cfg := &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	provider.httpClient = customClient

	messages := []protocol.Message{
		protocol.CreateUserMessage("Hello"),
	}

	text, _, tokens, err := provider.Generate(context.Background(), "", messages, nil)

	if err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
	if text != "Hello from custom client!" {
		t.Errorf("Generate() text = %v, want Hello from custom client!", text)
	}
	if tokens != 13 {
		t.Errorf("Generate() tokens = %v, want 13", tokens)
	}
}
