// Package chat orchestrates conversational requests across three
// modes: ask (direct generation), rag (retrieval-grounded generation)
// and agent (tool-calling rounds against registered MCP servers). It
// produces either a single response or a stream of typed events.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/llms"
	"github.com/medquery/medquery/pkg/mcp"
	"github.com/medquery/medquery/pkg/observability"
	"github.com/medquery/medquery/pkg/protocol"
	"github.com/medquery/medquery/pkg/rag"
	"github.com/medquery/medquery/pkg/utils"
)

// streamBufferSize bounds the event channel so a stalled consumer
// applies backpressure instead of growing memory.
const streamBufferSize = 100

// Retriever supplies documents for context grounding. A topK of zero
// means the implementation's configured default. rag.SearchService
// implements it.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]protocol.RetrievedDocument, error)
}

// ToolRunner executes one round of tool invocations against a server
// snapshot. mcp.Dispatcher implements it.
type ToolRunner interface {
	RunRound(ctx context.Context, invocations []protocol.ToolInvocationRequest, servers []mcp.ServerRecord) []protocol.ActionTraceEntry
}

// Orchestrator routes requests through the mode-specific pipelines.
type Orchestrator struct {
	config     *config.ChatConfig
	llms       *llms.LLMRegistry
	retriever  Retriever
	servers    *mcp.ServerRegistry
	dispatcher ToolRunner
	schemas    *mcp.SchemaRegistry
}

// NewOrchestrator wires the orchestrator. The retriever, server
// registry and dispatcher may be nil; the modes needing them then fail
// with their typed errors instead of at construction.
func NewOrchestrator(cfg *config.ChatConfig, registry *llms.LLMRegistry, retriever Retriever, servers *mcp.ServerRegistry, dispatcher ToolRunner, schemas *mcp.SchemaRegistry) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("LLM registry cannot be nil")
	}
	if cfg == nil {
		cfg = &config.ChatConfig{}
	}
	cfg.SetDefaults()

	if schemas == nil {
		schemas = mcp.DefaultSchemaRegistry()
	}

	return &Orchestrator{
		config:     cfg,
		llms:       registry,
		retriever:  retriever,
		servers:    servers,
		dispatcher: dispatcher,
		schemas:    schemas,
	}, nil
}

// Handle serves a non-streaming request: the full generation is
// drained into one response, never partial output.
func (o *Orchestrator) Handle(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("medquery.chat")
	ctx, span := tracer.Start(ctx, observability.SpanChatRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrChatMode, string(req.Mode)),
			attribute.Bool("streaming", false),
		),
	)
	defer span.End()

	response, err := o.handle(ctx, req)
	o.finish(ctx, span, req.Mode, startTime, err)
	return response, err
}

func (o *Orchestrator) handle(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	// Mode gates everything: an unknown mode costs no provider call.
	if !req.Mode.Valid() {
		return nil, &UnsupportedModeError{Mode: string(req.Mode)}
	}

	provider, providerName, err := o.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	messages := conversation(req)

	switch req.Mode {
	case protocol.ModeRAG:
		return o.handleRAG(ctx, provider, providerName, req, messages)
	case protocol.ModeAgent:
		return o.handleAgent(ctx, provider, providerName, messages)
	default:
		return o.handleAsk(ctx, provider, providerName, req.Mode, messages)
	}
}

// HandleStream serves a streaming request. Validation failures are
// returned synchronously; everything after that flows through the
// event channel, which always terminates with a done event.
func (o *Orchestrator) HandleStream(ctx context.Context, req protocol.Request) (<-chan protocol.StreamEvent, error) {
	if !req.Mode.Valid() {
		return nil, &UnsupportedModeError{Mode: string(req.Mode)}
	}

	provider, providerName, err := o.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	events := make(chan protocol.StreamEvent, streamBufferSize)

	go func() {
		defer close(events)

		startTime := time.Now()

		tracer := observability.GetTracer("medquery.chat")
		ctx, span := tracer.Start(ctx, observability.SpanChatRequest,
			trace.WithAttributes(
				attribute.String(observability.AttrChatMode, string(req.Mode)),
				attribute.Bool("streaming", true),
			),
		)
		defer span.End()

		err := o.stream(ctx, provider, providerName, req, events)
		o.finish(ctx, span, req.Mode, startTime, err)
	}()

	return events, nil
}

func (o *Orchestrator) stream(ctx context.Context, provider llms.LLMProvider, providerName string, req protocol.Request, events chan<- protocol.StreamEvent) error {
	messages := conversation(req)

	var failure error
	var traceEntries []protocol.ActionTraceEntry

	switch req.Mode {
	case protocol.ModeRAG:
		failure = o.streamRAG(ctx, provider, providerName, req.Message, messages, events)
	case protocol.ModeAgent:
		traceEntries, failure = o.streamAgent(ctx, provider, providerName, messages, events)
	default:
		failure = o.streamGeneration(ctx, provider, providerName, req.Mode, systemPrompt(req.Mode, ""), messages, events)
	}

	if failure != nil {
		emit(ctx, events, protocol.ErrorEvent(failure.Error()))
	}

	// Every stream ends with a done frame, even after an error, so
	// consumers have a single termination condition.
	emit(ctx, events, protocol.DoneEvent(traceEntries))
	return failure
}

// ----------------------------------------------------------------------------
// ASK
// ----------------------------------------------------------------------------

func (o *Orchestrator) handleAsk(ctx context.Context, provider llms.LLMProvider, providerName string, mode protocol.Mode, messages []protocol.Message) (*protocol.Response, error) {
	system := systemPrompt(mode, "")
	text, _, tokens, err := provider.Generate(ctx, system, messages, nil)
	if err != nil {
		return nil, &GenerationError{Provider: providerName, Err: err}
	}

	logUsage(mode, provider.GetModelName(), system, messages, text, tokens)

	return &protocol.Response{Text: text, Mode: mode}, nil
}

// ----------------------------------------------------------------------------
// RAG
// ----------------------------------------------------------------------------

func (o *Orchestrator) handleRAG(ctx context.Context, provider llms.LLMProvider, providerName string, req protocol.Request, messages []protocol.Message) (*protocol.Response, error) {
	docs, err := o.retrieve(ctx, req.Message)
	if err != nil {
		return nil, err
	}

	system := ragSystemPrompt(rag.Format(docs))
	text, _, tokens, err := provider.Generate(ctx, system, messages, nil)
	if err != nil {
		return nil, &GenerationError{Provider: providerName, Err: err}
	}

	logUsage(protocol.ModeRAG, provider.GetModelName(), system, messages, text, tokens)

	return &protocol.Response{
		Text:    text,
		Mode:    protocol.ModeRAG,
		Sources: rag.Project(docs),
	}, nil
}

func (o *Orchestrator) streamRAG(ctx context.Context, provider llms.LLMProvider, providerName string, query string, messages []protocol.Message, events chan<- protocol.StreamEvent) error {
	docs, err := o.retrieve(ctx, query)
	if err != nil {
		return err
	}

	// Sources go out before any generated content.
	if !emit(ctx, events, protocol.SourcesEvent(rag.Project(docs))) {
		return ctx.Err()
	}

	return o.streamGeneration(ctx, provider, providerName, protocol.ModeRAG, ragSystemPrompt(rag.Format(docs)), messages, events)
}

func (o *Orchestrator) retrieve(ctx context.Context, query string) ([]protocol.RetrievedDocument, error) {
	if o.retriever == nil {
		return nil, &RetrievalError{Query: query, Err: errors.New("no retriever configured")}
	}

	docs, err := o.retriever.Search(ctx, query, 0)
	if err != nil {
		return nil, &RetrievalError{Query: query, Err: err}
	}
	return docs, nil
}

// ----------------------------------------------------------------------------
// AGENT
// ----------------------------------------------------------------------------

func (o *Orchestrator) handleAgent(ctx context.Context, provider llms.LLMProvider, providerName string, messages []protocol.Message) (*protocol.Response, error) {
	if o.dispatcher == nil || o.servers == nil {
		return nil, &ToolServerUnavailableError{Err: errors.New("tool dispatch is not configured")}
	}

	tools := o.schemas.List()
	snapshot := o.servers.Snapshot()

	var text strings.Builder
	var traceEntries []protocol.ActionTraceEntry

	working := append([]protocol.Message(nil), messages...)

	for round := 0; ; round++ {
		if round >= o.config.MaxToolRounds {
			return nil, &ToolRoundLimitError{Limit: o.config.MaxToolRounds, Trace: traceEntries}
		}

		fragment, invocations, tokens, err := provider.Generate(ctx, agentSystemPrompt, working, tools)
		if err != nil {
			return nil, &GenerationError{Provider: providerName, Err: err}
		}
		text.WriteString(fragment)
		logUsage(protocol.ModeAgent, provider.GetModelName(), agentSystemPrompt, working, fragment, tokens)

		if len(invocations) == 0 {
			break
		}

		entries := o.dispatcher.RunRound(ctx, invocations, snapshot)
		traceEntries = append(traceEntries, entries...)

		working = append(working, assistantTurn(fragment, invocations))
		working = append(working, toolResultsMessage(entries))
	}

	return &protocol.Response{
		Text:      text.String(),
		Mode:      protocol.ModeAgent,
		ToolCalls: traceEntries,
	}, nil
}

func (o *Orchestrator) streamAgent(ctx context.Context, provider llms.LLMProvider, providerName string, messages []protocol.Message, events chan<- protocol.StreamEvent) ([]protocol.ActionTraceEntry, error) {
	if o.dispatcher == nil || o.servers == nil {
		return nil, &ToolServerUnavailableError{Err: errors.New("tool dispatch is not configured")}
	}

	tools := o.schemas.List()
	snapshot := o.servers.Snapshot()

	var traceEntries []protocol.ActionTraceEntry
	working := append([]protocol.Message(nil), messages...)

	for round := 0; ; round++ {
		if round >= o.config.MaxToolRounds {
			return traceEntries, &ToolRoundLimitError{Limit: o.config.MaxToolRounds, Trace: traceEntries}
		}

		text, invocations, err := o.streamRound(ctx, provider, providerName, working, tools, events)
		if err != nil {
			return traceEntries, err
		}

		if len(invocations) == 0 {
			return traceEntries, nil
		}

		entries := o.dispatcher.RunRound(ctx, invocations, snapshot)
		for _, entry := range entries {
			traceEntries = append(traceEntries, entry)
			if !emit(ctx, events, protocol.ActionEvent(entry)) {
				return traceEntries, ctx.Err()
			}
		}

		working = append(working, assistantTurn(text, invocations))
		working = append(working, toolResultsMessage(entries))
	}
}

// streamRound runs one streaming generation, forwarding text fragments
// as they arrive and collecting the tool invocations the model
// requested.
func (o *Orchestrator) streamRound(ctx context.Context, provider llms.LLMProvider, providerName string, messages []protocol.Message, tools []protocol.ToolSchema, events chan<- protocol.StreamEvent) (string, []protocol.ToolInvocationRequest, error) {
	chunks, err := provider.GenerateStreaming(ctx, agentSystemPrompt, messages, tools)
	if err != nil {
		return "", nil, &GenerationError{Provider: providerName, Err: err}
	}

	var text strings.Builder
	var invocations []protocol.ToolInvocationRequest
	tokens := 0

	for chunk := range chunks {
		switch chunk.Type {
		case llms.ChunkTypeText:
			if chunk.Text == "" {
				continue
			}
			text.WriteString(chunk.Text)
			if !emit(ctx, events, protocol.ContentEvent(chunk.Text)) {
				drain(chunks)
				return text.String(), nil, ctx.Err()
			}
		case llms.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				invocations = append(invocations, *chunk.ToolCall)
			}
		case llms.ChunkTypeDone:
			tokens = chunk.Tokens
		case llms.ChunkTypeError:
			drain(chunks)
			return text.String(), nil, &GenerationError{Provider: providerName, Err: chunk.Error}
		}
	}

	logUsage(protocol.ModeAgent, provider.GetModelName(), agentSystemPrompt, messages, text.String(), tokens)
	return text.String(), invocations, nil
}

// ----------------------------------------------------------------------------
// SHARED
// ----------------------------------------------------------------------------

// streamGeneration forwards the text fragments of one streaming
// generation without tools (ask and rag modes).
func (o *Orchestrator) streamGeneration(ctx context.Context, provider llms.LLMProvider, providerName string, mode protocol.Mode, system string, messages []protocol.Message, events chan<- protocol.StreamEvent) error {
	chunks, err := provider.GenerateStreaming(ctx, system, messages, nil)
	if err != nil {
		return &GenerationError{Provider: providerName, Err: err}
	}

	var text strings.Builder
	tokens := 0

	for chunk := range chunks {
		switch chunk.Type {
		case llms.ChunkTypeText:
			if chunk.Text == "" {
				continue
			}
			text.WriteString(chunk.Text)
			if !emit(ctx, events, protocol.ContentEvent(chunk.Text)) {
				drain(chunks)
				return ctx.Err()
			}
		case llms.ChunkTypeDone:
			tokens = chunk.Tokens
		case llms.ChunkTypeError:
			drain(chunks)
			return &GenerationError{Provider: providerName, Err: chunk.Error}
		}
	}

	logUsage(mode, provider.GetModelName(), system, messages, text.String(), tokens)
	return nil
}

// resolveProvider maps the request's provider/model overrides to a
// configured instance. Unknown names fail here, before any network
// call.
func (o *Orchestrator) resolveProvider(req protocol.Request) (llms.LLMProvider, string, error) {
	name := req.Provider
	if name == "" {
		name = o.config.DefaultProvider
	}

	provider, err := o.llms.Resolve(name, req.Model)
	if err != nil {
		return nil, name, &GenerationError{Provider: name, Err: err}
	}
	return provider, name, nil
}

// conversation builds the message sequence: prior history followed by
// the current user message, appended exactly once. History is passed
// through unmodified, never trimmed or reworded.
func conversation(req protocol.Request) []protocol.Message {
	messages := make([]protocol.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, protocol.CreateUserMessage(req.Message))
	return messages
}

// assistantTurn records the model's side of a tool round in the
// working conversation.
func assistantTurn(text string, invocations []protocol.ToolInvocationRequest) protocol.Message {
	if text != "" {
		return protocol.CreateAssistantMessage(text)
	}

	names := make([]string, 0, len(invocations))
	for _, invocation := range invocations {
		names = append(names, invocation.FunctionName)
	}
	return protocol.CreateAssistantMessage("Calling tools: " + strings.Join(names, ", "))
}

// toolResultsMessage renders a round's outcomes as the user-role
// message fed back to the model. Failed entries keep their full error
// wording so the model can adjust.
func toolResultsMessage(entries []protocol.ActionTraceEntry) protocol.Message {
	var b strings.Builder
	b.WriteString("Tool results:")
	for _, entry := range entries {
		b.WriteString("\n")
		if entry.Success {
			b.WriteString(entry.Action + ": " + entry.Result)
		} else {
			invErr := &ToolInvocationError{Function: entry.Action, Err: errors.New(entry.Error)}
			b.WriteString(invErr.Error())
		}
	}
	return protocol.CreateUserMessage(b.String())
}

// emit delivers an event unless the consumer has gone away.
func emit(ctx context.Context, events chan<- protocol.StreamEvent, event protocol.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain unblocks an abandoned provider stream so its producer can
// observe the cancellation and exit.
func drain(chunks <-chan llms.StreamChunk) {
	for range chunks {
	}
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, mode protocol.Mode, startTime time.Time, err error) {
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	metrics := observability.GetGlobalMetrics()
	if metrics != nil {
		metrics.RecordChatRequest(ctx, string(mode), duration, err)
	}
}

// logUsage reports token usage per generation. When the provider did
// not report usage it is estimated locally; the estimate feeds logging
// only and never alters the conversation.
func logUsage(mode protocol.Mode, model, system string, messages []protocol.Message, completion string, tokens int) {
	estimated := false
	if tokens == 0 {
		tokens = estimateTokens(model, system, messages, completion)
		estimated = true
	}
	slog.Debug("Generation finished",
		"mode", mode,
		"model", model,
		"tokens", tokens,
		"estimated", estimated)
}

func estimateTokens(model, system string, messages []protocol.Message, completion string) int {
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		return 0
	}

	converted := make([]utils.Message, 0, len(messages)+1)
	converted = append(converted, utils.Message{Role: "system", Content: system})
	for _, message := range messages {
		converted = append(converted, utils.Message{Role: string(message.Role), Content: message.Content})
	}
	return counter.CountMessages(converted) + counter.Count(completion)
}
