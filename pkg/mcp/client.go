package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/httpclient"
)

const (
	mcpProtocolVersion = "2024-11-05"
	mcpClientName      = "medquery"
	mcpClientVersion   = "1.0.0"

	defaultClientTimeout = 30 * time.Second
	defaultMaxRetries    = 3
	defaultRetryDelay    = 2 * time.Second
)

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client speaks the Model Context Protocol to one server. HTTP servers
// get JSON-RPC 2.0 over POST with an SSE-framed response fallback,
// stdio servers run as a subprocess. Connections are established
// lazily on first use.
type Client struct {
	record     ServerRecord
	httpClient *httpclient.Client

	initMu      sync.Mutex
	initialized bool

	sessionMu sync.RWMutex
	sessionID string

	stdioMu     sync.Mutex
	stdioClient *mcpclient.Client
}

func NewClient(record ServerRecord) *Client {
	return &Client{
		record: record,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: defaultClientTimeout,
			}),
			httpclient.WithMaxRetries(defaultMaxRetries),
			httpclient.WithBaseDelay(defaultRetryDelay),
		),
	}
}

// Initialize performs the protocol handshake. Calling it is optional,
// ListTools and CallTool initialize on first use.
func (c *Client) Initialize(ctx context.Context) error {
	if c.record.Transport == config.MCPTransportStdio {
		_, err := c.ensureStdio(ctx)
		return err
	}
	return c.ensureInitialized(ctx)
}

// ListTools returns the tools the server advertises via tools/list.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if c.record.Transport == config.MCPTransportStdio {
		return c.listToolsStdio(ctx)
	}
	return c.listToolsHTTP(ctx)
}

// CallTool invokes the named tool and returns the concatenated text
// content of the result. A result flagged isError comes back as an
// error carrying that text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.record.Transport == config.MCPTransportStdio {
		return c.callToolStdio(ctx, name, args)
	}
	return c.callToolHTTP(ctx, name, args)
}

// Close shuts down the stdio subprocess if one was started. HTTP
// connections need no teardown.
func (c *Client) Close() error {
	c.stdioMu.Lock()
	defer c.stdioMu.Unlock()

	if c.stdioClient != nil {
		err := c.stdioClient.Close()
		c.stdioClient = nil
		return err
	}
	return nil
}

func (c *Client) ensureInitialized(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}

	resp, err := c.makeRequest(ctx, "initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"clientInfo": map[string]any{
			"name":    mcpClientName,
			"version": mcpClientVersion,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP session with %s: %w", c.record.Name, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("MCP initialize error from %s: %s", c.record.Name, resp.Error.Message)
	}

	c.initialized = true
	return nil
}

func (c *Client) listToolsHTTP(ctx context.Context) ([]ToolDescriptor, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	resp, err := c.makeRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list request failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("MCP error: %s", resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected tools/list result type %T", resp.Result)
	}
	rawTools, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("tools/list result has no tools array")
	}

	tools := make([]ToolDescriptor, 0, len(rawTools))
	for _, raw := range rawTools {
		toolMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		tool := ToolDescriptor{}
		if name, ok := toolMap["name"].(string); ok {
			tool.Name = name
		}
		if desc, ok := toolMap["description"].(string); ok {
			tool.Description = desc
		}
		if schema, ok := toolMap["inputSchema"].(map[string]any); ok {
			tool.InputSchema = schema
		}
		if tool.Name != "" {
			tools = append(tools, tool)
		}
	}
	return tools, nil
}

func (c *Client) callToolHTTP(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return "", err
	}

	resp, err := c.makeRequest(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("tools/call request failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("MCP error: %s", resp.Error.Message)
	}

	text := extractTextContent(resp.Result)

	if resultMap, ok := resp.Result.(map[string]any); ok {
		if isError, ok := resultMap["isError"].(bool); ok && isError {
			if text == "" {
				text = "tool reported an error"
			}
			return "", fmt.Errorf("tool error: %s", text)
		}
	}
	return text, nil
}

// makeRequest posts one JSON-RPC request and decodes the response,
// whether the server answers with plain JSON or an SSE-framed body.
// The mcp-session-id response header is captured and replayed on
// subsequent requests.
func (c *Client) makeRequest(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	request := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.record.BaseURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if c.record.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.record.APIKey)
	}

	c.sessionMu.RLock()
	if c.sessionID != "" {
		httpReq.Header.Set("mcp-session-id", c.sessionID)
	}
	c.sessionMu.RUnlock()

	httpResp, err := c.httpClient.Do(httpReq)
	if httpResp == nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if sessionID := httpResp.Header.Get("mcp-session-id"); sessionID != "" {
		c.sessionMu.Lock()
		c.sessionID = sessionID
		c.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(httpResp.Body)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response jsonRPCResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &response, nil
}

// readSSEResponse accumulates data lines until a blank line terminates
// the event, then decodes the payload. The first event that parses as
// a JSON-RPC response wins.
func readSSEResponse(body io.Reader) (*jsonRPCResponse, error) {
	reader := bufio.NewReader(body)
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
		} else if trimmed == "" && data.Len() > 0 {
			var response jsonRPCResponse
			if parseErr := json.Unmarshal([]byte(data.String()), &response); parseErr == nil {
				return &response, nil
			}
			data.Reset()
		}

		if err != nil {
			break
		}
	}

	if data.Len() > 0 {
		var response jsonRPCResponse
		if parseErr := json.Unmarshal([]byte(data.String()), &response); parseErr == nil {
			return &response, nil
		}
	}
	return nil, fmt.Errorf("SSE stream ended without a complete response")
}

// extractTextContent joins the text items of an MCP content array.
func extractTextContent(result any) string {
	resultMap, ok := result.(map[string]any)
	if !ok {
		return ""
	}
	content, ok := resultMap["content"].([]any)
	if !ok {
		return ""
	}

	var b strings.Builder
	for _, item := range content {
		itemMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if itemType, ok := itemMap["type"].(string); ok && itemType != "text" {
			continue
		}
		if text, ok := itemMap["text"].(string); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return b.String()
}

func (c *Client) ensureStdio(ctx context.Context) (*mcpclient.Client, error) {
	c.stdioMu.Lock()
	defer c.stdioMu.Unlock()

	if c.stdioClient != nil {
		return c.stdioClient, nil
	}

	stdio, err := mcpclient.NewStdioMCPClient(c.record.Command, nil, c.record.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio client for %s: %w", c.record.Name, err)
	}

	if err := stdio.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP subprocess %s: %w", c.record.Command, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpProtocolVersion
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    mcpClientName,
		Version: mcpClientVersion,
	}
	if _, err := stdio.Initialize(ctx, initReq); err != nil {
		stdio.Close()
		return nil, fmt.Errorf("failed to initialize MCP subprocess %s: %w", c.record.Command, err)
	}

	c.stdioClient = stdio
	return stdio, nil
}

func (c *Client) listToolsStdio(ctx context.Context) ([]ToolDescriptor, error) {
	stdio, err := c.ensureStdio(ctx)
	if err != nil {
		return nil, err
	}

	listResp, err := stdio.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}

	tools := make([]ToolDescriptor, 0, len(listResp.Tools))
	for _, tool := range listResp.Tools {
		tools = append(tools, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchemaToMap(tool.InputSchema),
		})
	}
	return tools, nil
}

func (c *Client) callToolStdio(ctx context.Context, name string, args map[string]any) (string, error) {
	stdio, err := c.ensureStdio(ctx)
	if err != nil {
		return "", err
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := stdio.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tools/call failed: %w", err)
	}

	text := stdioTextContent(resp)
	if resp.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", fmt.Errorf("tool error: %s", text)
	}
	return text, nil
}

func stdioTextContent(resp *mcpgo.CallToolResult) string {
	var b strings.Builder
	for _, item := range resp.Content {
		if textContent, ok := item.(mcpgo.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(textContent.Text)
		}
	}
	return b.String()
}

// inputSchemaToMap converts the typed schema through JSON, the shape
// the model-facing catalogue expects.
func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}
