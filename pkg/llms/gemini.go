package llms

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/observability"
	"github.com/medquery/medquery/pkg/protocol"
)

// GeminiProvider generates through the official google.golang.org/genai
// SDK rather than raw HTTP. The SDK owns transport, retry, and SSE
// decoding for the Gemini API.
type GeminiProvider struct {
	config *config.LLMConfig
	client *genai.Client
}

func NewGeminiProviderFromConfig(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini")
	}

	// Constructors should not require a caller context.
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		config: cfg,
		client: client,
	}, nil
}

func (p *GeminiProvider) GetModelName() string {
	return p.config.Model
}

func (p *GeminiProvider) GetMaxTokens() int {
	return p.config.MaxTokens
}

func (p *GeminiProvider) GetTemperature() float64 {
	if p.config.Temperature == nil {
		return 0.1
	}
	return *p.config.Temperature
}

func (p *GeminiProvider) Close() error {
	return nil
}

func (p *GeminiProvider) Generate(ctx context.Context, system string, messages []protocol.Message, tools []protocol.ToolSchema) (string, []protocol.ToolInvocationRequest, int, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("medquery.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.config.Model),
			attribute.String("provider", "gemini"),
			attribute.Bool("streaming", false),
		),
	)
	defer span.End()

	contents := p.buildContents(messages)
	genCfg := p.buildConfig(system, tools)

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, genCfg)
	duration := time.Since(startTime)

	if err != nil {
		genErr := fmt.Errorf("Gemini generation failed: %w", err)
		span.RecordError(genErr)
		span.SetStatus(codes.Error, err.Error())

		metrics := observability.GetGlobalMetrics()
		if metrics != nil {
			metrics.RecordLLMCall(ctx, p.config.Model, duration, 0, 0, genErr)
		}

		return "", nil, 0, genErr
	}

	if len(resp.Candidates) == 0 {
		noCandErr := fmt.Errorf("empty response from Gemini")
		span.RecordError(noCandErr)
		span.SetStatus(codes.Error, "no candidates")

		metrics := observability.GetGlobalMetrics()
		if metrics != nil {
			metrics.RecordLLMCall(ctx, p.config.Model, duration, 0, 0, noCandErr)
		}

		return "", nil, 0, noCandErr
	}

	var text string
	var toolCalls []protocol.ToolInvocationRequest

	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
			if part.FunctionCall != nil {
				toolCalls = append(toolCalls, protocol.ToolInvocationRequest{
					FunctionName: part.FunctionCall.Name,
					Arguments:    part.FunctionCall.Args,
				})
			}
		}
	}

	var inputTokens, outputTokens, totalTokens int
	if resp.UsageMetadata != nil {
		inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		totalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, inputTokens),
		attribute.Int(observability.AttrLLMTokensOutput, outputTokens),
		attribute.Int("llm.tool_calls", len(toolCalls)),
	)
	span.SetStatus(codes.Ok, "success")

	metrics := observability.GetGlobalMetrics()
	if metrics != nil {
		metrics.RecordLLMCall(ctx, p.config.Model, duration, inputTokens, outputTokens, nil)
	}

	return text, toolCalls, totalTokens, nil
}

func (p *GeminiProvider) GenerateStreaming(ctx context.Context, system string, messages []protocol.Message, tools []protocol.ToolSchema) (<-chan StreamChunk, error) {
	contents := p.buildContents(messages)
	genCfg := p.buildConfig(system, tools)

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)

		totalTokens := 0

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.config.Model, contents, genCfg) {
			if err != nil {
				outputCh <- StreamChunk{
					Type:  ChunkTypeError,
					Error: fmt.Errorf("Gemini streaming error: %w", err),
				}
				return
			}

			if resp.UsageMetadata != nil {
				totalTokens = int(resp.UsageMetadata.TotalTokenCount)
			}

			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}

			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					outputCh <- StreamChunk{
						Type: ChunkTypeText,
						Text: part.Text,
					}
				}
				if part.FunctionCall != nil {
					outputCh <- StreamChunk{
						Type: ChunkTypeToolCall,
						ToolCall: &protocol.ToolInvocationRequest{
							FunctionName: part.FunctionCall.Name,
							Arguments:    part.FunctionCall.Args,
						},
					}
				}
			}
		}

		outputCh <- StreamChunk{
			Type:   ChunkTypeDone,
			Tokens: totalTokens,
		}
	}()

	return outputCh, nil
}

func (p *GeminiProvider) buildContents(messages []protocol.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		role := "user"
		if msg.Role == protocol.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	return contents
}

func (p *GeminiProvider) buildConfig(system string, tools []protocol.ToolSchema) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	cfg.Temperature = genai.Ptr(float32(p.GetTemperature()))
	if p.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.config.MaxTokens)
	}

	if len(tools) > 0 {
		cfg.Tools = buildGeminiTools(tools)
	}

	return cfg
}

func buildGeminiTools(tools []protocol.ToolSchema) []*genai.Tool {
	var genaiTools []*genai.Tool

	for _, t := range tools {
		genaiTools = append(genaiTools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  toGenaiSchema(t.Parameters),
				},
			},
		})
	}

	return genaiTools
}

// toGenaiSchema converts a JSON schema mapping into the SDK's typed
// schema. Only the subset the tool catalogue produces is handled.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}

	return s
}
