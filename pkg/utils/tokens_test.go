package utils

import (
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		wantError bool
	}{
		{
			name:      "GPT-4o model",
			model:     "gpt-4o",
			wantError: false,
		},
		{
			name:      "GPT-4 model",
			model:     "gpt-4",
			wantError: false,
		},
		{
			name:      "Claude model (uses fallback)",
			model:     "claude-sonnet-4",
			wantError: false,
		},
		{
			name:      "Unknown model (uses fallback)",
			model:     "some-local-model",
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter, err := NewTokenCounter(tt.model)
			if (err != nil) != tt.wantError {
				t.Errorf("NewTokenCounter() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && counter == nil {
				t.Error("NewTokenCounter() returned nil counter")
			}
			if counter != nil && counter.Model() != tt.model {
				t.Errorf("NewTokenCounter() model = %v, want %v", counter.Model(), tt.model)
			}
		})
	}
}

func TestTokenCounter_Count(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{
			name:      "Empty string",
			text:      "",
			minTokens: 0,
			maxTokens: 0,
		},
		{
			name:      "Simple sentence",
			text:      "Hello, world!",
			minTokens: 3,
			maxTokens: 5,
		},
		{
			name:      "Clinical question",
			text:      "What are the common side effects of metformin in elderly patients?",
			minTokens: 10,
			maxTokens: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := counter.Count(tt.text)
			if count < tt.minTokens || count > tt.maxTokens {
				t.Errorf("Count() = %v, want between %v and %v for text: %q",
					count, tt.minTokens, tt.maxTokens, tt.text)
			}
		})
	}
}

func TestTokenCounter_CountMessages(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		name      string
		messages  []Message
		minTokens int
		maxTokens int
	}{
		{
			name:      "Empty messages",
			messages:  []Message{},
			minTokens: 3, // Reply priming tokens
			maxTokens: 3,
		},
		{
			name: "Single message",
			messages: []Message{
				{Role: "user", Content: "Hello"},
			},
			minTokens: 5,
			maxTokens: 10,
		},
		{
			name: "Conversation",
			messages: []Message{
				{Role: "user", Content: "What is ibuprofen used for?"},
				{Role: "assistant", Content: "Ibuprofen is a nonsteroidal anti-inflammatory drug."},
				{Role: "user", Content: "Tell me more."},
			},
			minTokens: 20,
			maxTokens: 45,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := counter.CountMessages(tt.messages)
			if count < tt.minTokens || count > tt.maxTokens {
				t.Errorf("CountMessages() = %v, want between %v and %v",
					count, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestTokenCounter_Caching(t *testing.T) {
	counter1, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("Failed to create first counter: %v", err)
	}

	counter2, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("Failed to create second counter: %v", err)
	}

	text := "Test caching"
	count1 := counter1.Count(text)
	count2 := counter2.Count(text)

	if count1 != count2 {
		t.Errorf("Cached counters produced different results: %d vs %d", count1, count2)
	}
}

func BenchmarkTokenCounter_CountMessages(b *testing.B) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		b.Fatalf("Failed to create counter: %v", err)
	}

	messages := []Message{
		{Role: "user", Content: "What medications interact with warfarin?"},
		{Role: "assistant", Content: "Several drug classes interact with warfarin..."},
		{Role: "user", Content: "Which interaction is most dangerous?"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		counter.CountMessages(messages)
	}
}
