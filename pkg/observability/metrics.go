package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records the counters and histograms the orchestrator, providers,
// retrieval, and tool dispatch emit. Implementations must be safe to call
// with a zero value so disabled metrics never require nil checks.
type Metrics interface {
	RecordChatRequest(ctx context.Context, mode string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordRetrieval(ctx context.Context, collection string, duration time.Duration, results int, err error)
	RecordToolInvocation(ctx context.Context, function string, duration time.Duration, err error)
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

// PrometheusMetrics implements Metrics on OpenTelemetry instruments backed
// by the Prometheus exporter. The zero value records nothing.
type PrometheusMetrics struct {
	chatDuration    metric.Float64Histogram
	chatTotal       metric.Int64Counter
	chatErrors      metric.Int64Counter
	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter
	retrievalDur    metric.Float64Histogram
	retrievalTotal  metric.Int64Counter
	retrievalDocs   metric.Int64Counter
	retrievalErrors metric.Int64Counter
	toolDuration    metric.Float64Histogram
	toolTotal       metric.Int64Counter
	toolErrors      metric.Int64Counter
	httpDuration    metric.Float64Histogram
	httpTotal       metric.Int64Counter
}

// InitMetrics builds the instrument set. When metrics are disabled it
// returns an empty recorder whose methods are no-ops.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("medquery")

	m := &PrometheusMetrics{}

	if m.chatDuration, err = meter.Float64Histogram(
		"medquery_chat_request_duration_seconds",
		metric.WithDescription("Chat request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create chat duration histogram: %w", err)
	}

	if m.chatTotal, err = meter.Int64Counter(
		"medquery_chat_requests_total",
		metric.WithDescription("Total chat requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create chat requests counter: %w", err)
	}

	if m.chatErrors, err = meter.Int64Counter(
		"medquery_chat_errors_total",
		metric.WithDescription("Total chat request errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create chat errors counter: %w", err)
	}

	if m.llmDuration, err = meter.Float64Histogram(
		"medquery_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	if m.llmInputTokens, err = meter.Int64Counter(
		"medquery_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	if m.llmOutputTokens, err = meter.Int64Counter(
		"medquery_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	if m.llmErrors, err = meter.Int64Counter(
		"medquery_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	if m.retrievalDur, err = meter.Float64Histogram(
		"medquery_retrieval_duration_seconds",
		metric.WithDescription("Vector retrieval duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval duration histogram: %w", err)
	}

	if m.retrievalTotal, err = meter.Int64Counter(
		"medquery_retrievals_total",
		metric.WithDescription("Total vector retrievals"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrievals counter: %w", err)
	}

	if m.retrievalDocs, err = meter.Int64Counter(
		"medquery_retrieval_documents_total",
		metric.WithDescription("Total documents returned by retrieval"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval documents counter: %w", err)
	}

	if m.retrievalErrors, err = meter.Int64Counter(
		"medquery_retrieval_errors_total",
		metric.WithDescription("Total retrieval errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval errors counter: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"medquery_tool_invocation_duration_seconds",
		metric.WithDescription("Tool invocation duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if m.toolTotal, err = meter.Int64Counter(
		"medquery_tool_invocations_total",
		metric.WithDescription("Total tool invocations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool invocations counter: %w", err)
	}

	if m.toolErrors, err = meter.Int64Counter(
		"medquery_tool_errors_total",
		metric.WithDescription("Total tool invocation errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		"medquery_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	if m.httpTotal, err = meter.Int64Counter(
		"medquery_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return m, nil
}

func (m *PrometheusMetrics) RecordChatRequest(ctx context.Context, mode string, duration time.Duration, err error) {
	if m == nil || m.chatDuration == nil || m.chatTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
	}

	m.chatDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.chatTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.chatErrors != nil {
		m.chatErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmInputTokens == nil || m.llmOutputTokens == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))

	if err != nil && m.llmErrors != nil {
		m.llmErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, collection string, duration time.Duration, results int, err error) {
	if m == nil || m.retrievalDur == nil || m.retrievalTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("collection", collection),
	}

	m.retrievalDur.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.retrievalTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if results > 0 && m.retrievalDocs != nil {
		m.retrievalDocs.Add(ctx, int64(results), metric.WithAttributes(attrs...))
	}

	if err != nil && m.retrievalErrors != nil {
		m.retrievalErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordToolInvocation(ctx context.Context, function string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil || m.toolTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("function", function),
	}

	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.toolTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.toolErrors != nil {
		m.toolErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpDuration == nil || m.httpTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", statusCode),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Handler serves the Prometheus scrape endpoint. The otel exporter
// registers against the default registry, so the stock handler sees
// everything recorded above.
func Handler() http.Handler {
	return promhttp.Handler()
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
