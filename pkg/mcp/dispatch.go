package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/observability"
	"github.com/medquery/medquery/pkg/protocol"
)

// ToolCaller invokes one tool on one server. Client implements it, and
// tests substitute stubs through the dispatcher's caller factory.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Dispatcher routes model tool calls to servers. Each function name
// maps to a category, and the call goes to the first active server
// whose name contains that category. Per-server clients are cached
// across rounds.
type Dispatcher struct {
	categories  map[string]string
	callTimeout time.Duration

	mu      sync.Mutex
	clients map[string]ToolCaller

	newCaller func(ServerRecord) ToolCaller
}

func NewDispatcher(cfg *config.MCPConfig) *Dispatcher {
	if cfg == nil {
		cfg = &config.MCPConfig{}
		cfg.SetDefaults()
	}

	categories := make(map[string]string, len(cfg.FunctionCategories))
	for function, category := range cfg.FunctionCategories {
		categories[function] = category
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultClientTimeout
	}

	d := &Dispatcher{
		categories:  categories,
		callTimeout: callTimeout,
		clients:     make(map[string]ToolCaller),
	}
	d.newCaller = func(record ServerRecord) ToolCaller {
		return NewClient(record)
	}
	return d
}

// RunRound executes one round of tool invocations sequentially and
// returns one trace entry per invocation, in request order. Failures
// are captured inside the entries, never returned as errors, so one
// bad call cannot abort the round.
func (d *Dispatcher) RunRound(ctx context.Context, invocations []protocol.ToolInvocationRequest, servers []ServerRecord) []protocol.ActionTraceEntry {
	entries := make([]protocol.ActionTraceEntry, 0, len(invocations))
	for _, invocation := range invocations {
		entries = append(entries, d.dispatch(ctx, invocation, servers))
	}
	return entries
}

func (d *Dispatcher) dispatch(ctx context.Context, invocation protocol.ToolInvocationRequest, servers []ServerRecord) protocol.ActionTraceEntry {
	startTime := time.Now()

	tracer := observability.GetTracer("medquery.mcp")
	ctx, span := tracer.Start(ctx, observability.SpanToolInvocation,
		trace.WithAttributes(
			attribute.String(observability.AttrToolFunction, invocation.FunctionName),
		),
	)
	defer span.End()

	entry := protocol.ActionTraceEntry{
		Action:     invocation.FunctionName,
		Parameters: invocation.Arguments,
	}

	category, ok := d.categories[invocation.FunctionName]
	if !ok {
		entry.Error = fmt.Sprintf("Unknown function: %s", invocation.FunctionName)
		d.record(ctx, span, invocation.FunctionName, startTime, errors.New(entry.Error))
		return entry
	}

	server, found := findServer(servers, category)
	if !found {
		entry.Error = fmt.Sprintf("No active server found for category %q", category)
		d.record(ctx, span, invocation.FunctionName, startTime, errors.New(entry.Error))
		return entry
	}

	span.SetAttributes(attribute.String(observability.AttrToolServer, server.Name))

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	result, err := d.callerFor(server).CallTool(callCtx, invocation.FunctionName, invocation.Arguments)
	if err != nil {
		entry.Error = err.Error()
		d.record(ctx, span, invocation.FunctionName, startTime, err)
		return entry
	}

	entry.Result = result
	entry.Success = true
	d.record(ctx, span, invocation.FunctionName, startTime, nil)
	return entry
}

func (d *Dispatcher) record(ctx context.Context, span trace.Span, function string, startTime time.Time, err error) {
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	metrics := observability.GetGlobalMetrics()
	if metrics != nil {
		metrics.RecordToolInvocation(ctx, function, duration, err)
	}
}

// findServer returns the first active server whose name contains the
// category, compared case-insensitively in registration order.
func findServer(servers []ServerRecord, category string) (ServerRecord, bool) {
	needle := strings.ToLower(category)
	for _, server := range servers {
		if !server.Active {
			continue
		}
		if strings.Contains(strings.ToLower(server.Name), needle) {
			return server, true
		}
	}
	return ServerRecord{}, false
}

func (d *Dispatcher) callerFor(server ServerRecord) ToolCaller {
	d.mu.Lock()
	defer d.mu.Unlock()

	if caller, ok := d.clients[server.ID]; ok {
		return caller
	}
	caller := d.newCaller(server)
	d.clients[server.ID] = caller
	return caller
}

// Close shuts down the cached per-server clients.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for id, caller := range d.clients {
		if closer, ok := caller.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to close client for server %s: %w", id, err)
			}
		}
	}
	d.clients = make(map[string]ToolCaller)
	return firstErr
}
