// Package httpclient provides an HTTP client with rate limit aware retry
// policies, shared by the LLM providers and the remote tool transports.
package httpclient

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// RetryStrategy determines how a failed request is retried.
type RetryStrategy int

const (
	// NoRetry fails immediately.
	NoRetry RetryStrategy = iota

	// ConservativeRetry retries a small fixed number of times with linear
	// backoff. Used for transient server errors.
	ConservativeRetry

	// SmartRetry retries with exponential backoff, honoring rate limit
	// headers when the upstream provides them.
	SmartRetry
)

// RateLimitInfo carries rate limit state extracted from provider response headers.
type RateLimitInfo struct {
	RetryAfter            time.Duration
	ResetTime             int64 // Unix seconds
	RequestsRemaining     int
	InputTokensRemaining  int
	OutputTokensRemaining int
	TokensRemaining       int
}

// RateLimitHeaderParser extracts rate limit information from provider-specific headers.
type RateLimitHeaderParser func(http.Header) RateLimitInfo

// RetryStrategyFunc maps an HTTP status code to a retry strategy.
type RetryStrategyFunc func(int) RetryStrategy

// Client wraps http.Client with retry and rate limit handling.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithMaxRetries sets the maximum number of retries after the initial attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the base delay for backoff calculations.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithHeaderParser sets the provider-specific rate limit header parser.
func WithHeaderParser(p RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = p
	}
}

// WithRetryStrategy overrides the status code to strategy mapping.
func WithRetryStrategy(f RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = f
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client with defaults: 60s timeout, 5 retries, 2s base delay
// and the default status code strategy.
func New(options ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   5,
		baseDelay:    2 * time.Second,
		strategyFunc: DefaultRetryStrategy,
		logger:       slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// DefaultRetryStrategy maps status codes to retry strategies. Rate limiting
// and overload get smart backoff, transient server errors get a conservative
// retry, everything else fails immediately.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying according to the configured strategy.
// Request bodies are replayed via req.GetBody on each attempt. The request
// context is honored while waiting between attempts.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, strategy, retryInfo, err := c.attemptRequest(req)
		if err == nil {
			return resp, nil
		}
		lastResp = resp
		lastErr = err

		// Network level failure, nothing to inspect.
		if resp == nil {
			return nil, err
		}

		delay := c.calculateDelay(strategy, attempt, retryInfo)
		if delay <= 0 || attempt == c.maxRetries {
			break
		}

		c.logRetry(req, resp.StatusCode, attempt, delay)

		// This response is not going to the caller, release the connection.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}

	if lastResp != nil {
		return lastResp, &RetryableError{
			StatusCode: lastResp.StatusCode,
			Message:    "max retries exceeded",
			Err:        lastErr,
		}
	}
	return nil, lastErr
}

// attemptRequest performs a single request and classifies the outcome.
func (c *Client) attemptRequest(req *http.Request) (*http.Response, RetryStrategy, RateLimitInfo, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NoRetry, RateLimitInfo{}, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, NoRetry, RateLimitInfo{}, nil
	}

	strategy := c.strategyFunc(resp.StatusCode)

	var retryInfo RateLimitInfo
	if c.headerParser != nil && strategy == SmartRetry {
		retryInfo = c.headerParser(resp.Header)
	}

	return resp, strategy, retryInfo, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
}

// calculateDelay computes how long to wait before the next attempt.
// Returns 0 when no further retry should happen.
func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, retryInfo RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		// The provider told us exactly when to come back.
		if retryInfo.RetryAfter > 0 {
			return retryInfo.RetryAfter
		}
		if retryInfo.ResetTime > 0 {
			until := time.Until(time.Unix(retryInfo.ResetTime, 0))
			if until > 0 {
				return until
			}
		}
		// Exponential backoff with 10% jitter.
		delay := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt)))
		return delay + delay/10

	case ConservativeRetry:
		// Two linear attempts, then give up.
		if attempt >= 2 {
			return 0
		}
		return time.Duration(2+attempt) * time.Second

	default:
		return 0
	}
}

func (c *Client) logRetry(req *http.Request, statusCode, attempt int, delay time.Duration) {
	c.logger.Warn("Retrying request",
		"method", req.Method,
		"url", req.URL.String(),
		"status", statusCode,
		"attempt", attempt+1,
		"max_retries", c.maxRetries,
		"delay", delay)
}
