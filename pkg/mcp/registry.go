// Package mcp manages external tool servers: an ordered server
// registry, a Model Context Protocol client speaking JSON-RPC over
// HTTP or stdio, the built-in tool schema catalogue, and the dispatch
// loop that routes model tool calls to servers.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/medquery/medquery/pkg/config"
)

// ToolDescriptor describes one tool a server exposes.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ServerRecord describes one registered tool server. The API key is
// never serialized into listings.
type ServerRecord struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Transport   config.MCPTransport `json:"transport"`
	BaseURL     string              `json:"base_url,omitempty"`
	Command     string              `json:"command,omitempty"`
	Args        []string            `json:"args,omitempty"`
	APIKey      string              `json:"-"`
	Active      bool                `json:"active"`
	Tools       []ToolDescriptor    `json:"tools,omitempty"`
}

// ServerRegistry tracks tool servers in registration order. Dispatch
// resolves categories by walking that order, so it is a slice guarded
// by a lock rather than a map.
type ServerRegistry struct {
	mu      sync.RWMutex
	servers []ServerRecord
}

func NewServerRegistry() *ServerRegistry {
	return &ServerRegistry{}
}

// Register adds a server and returns the stored record with its
// assigned ID. Newly registered servers start active.
func (r *ServerRegistry) Register(record ServerRecord) (ServerRecord, error) {
	if record.Name == "" {
		return ServerRecord{}, NewServerRegistryError("register", "", "server name is required", nil)
	}
	if record.Transport == "" {
		record.Transport = config.MCPTransportHTTP
	}
	switch record.Transport {
	case config.MCPTransportHTTP:
		if record.BaseURL == "" {
			return ServerRecord{}, NewServerRegistryError("register", "", "base_url is required for http transport", nil)
		}
	case config.MCPTransportStdio:
		if record.Command == "" {
			return ServerRecord{}, NewServerRegistryError("register", "", "command is required for stdio transport", nil)
		}
	default:
		return ServerRecord{}, NewServerRegistryError("register", "", fmt.Sprintf("invalid transport %q (valid: http, stdio)", record.Transport), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.servers {
		if r.servers[i].Name == record.Name {
			return ServerRecord{}, NewServerRegistryError("register", r.servers[i].ID,
				fmt.Sprintf("server name %q already registered", record.Name), nil)
		}
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.Active = true

	r.servers = append(r.servers, record)

	slog.Info("Registered MCP server",
		"name", record.Name,
		"id", record.ID,
		"transport", record.Transport)

	return copyRecord(record), nil
}

// Get returns the server with the given ID.
func (r *ServerRegistry) Get(id string) (ServerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.servers {
		if r.servers[i].ID == id {
			return copyRecord(r.servers[i]), nil
		}
	}
	return ServerRecord{}, NewServerRegistryError("get", id, "server not found", nil)
}

// List returns all registered servers in registration order.
func (r *ServerRegistry) List() []ServerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyAllLocked()
}

// ListActive returns the active servers in registration order.
func (r *ServerRegistry) ListActive() []ServerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServerRecord, 0, len(r.servers))
	for i := range r.servers {
		if r.servers[i].Active {
			out = append(out, copyRecord(r.servers[i]))
		}
	}
	return out
}

// Snapshot returns an immutable copy of the registry in registration
// order. Dispatch takes one snapshot per request so concurrent
// registry changes cannot produce inconsistent traces.
func (r *ServerRegistry) Snapshot() []ServerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyAllLocked()
}

// Activate marks the server active.
func (r *ServerRegistry) Activate(id string) error {
	return r.setActive(id, true)
}

// Deactivate marks the server inactive. The record stays registered
// and can be activated again later.
func (r *ServerRegistry) Deactivate(id string) error {
	return r.setActive(id, false)
}

func (r *ServerRegistry) setActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.servers {
		if r.servers[i].ID == id {
			r.servers[i].Active = active
			return nil
		}
	}

	op := "deactivate"
	if active {
		op = "activate"
	}
	return NewServerRegistryError(op, id, "server not found", nil)
}

// Remove deletes the server from the registry.
func (r *ServerRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.servers {
		if r.servers[i].ID == id {
			r.servers = append(r.servers[:i], r.servers[i+1:]...)
			return nil
		}
	}
	return NewServerRegistryError("remove", id, "server not found", nil)
}

// SetTools replaces the tool list stored for the server.
func (r *ServerRegistry) SetTools(id string, tools []ToolDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.servers {
		if r.servers[i].ID == id {
			r.servers[i].Tools = append([]ToolDescriptor(nil), tools...)
			return nil
		}
	}
	return NewServerRegistryError("set_tools", id, "server not found", nil)
}

// Count returns the number of registered servers.
func (r *ServerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// DiscoverTools queries the server for its tools via tools/list and
// stores the result on the record.
func (r *ServerRegistry) DiscoverTools(ctx context.Context, id string) ([]ToolDescriptor, error) {
	record, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	client := NewClient(record)
	defer client.Close()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, NewServerRegistryError("discover_tools", id, "failed to list tools", err)
	}

	if err := r.SetTools(id, tools); err != nil {
		return nil, err
	}

	slog.Info("Discovered MCP tools", "server", record.Name, "count", len(tools))
	return tools, nil
}

func (r *ServerRegistry) copyAllLocked() []ServerRecord {
	out := make([]ServerRecord, 0, len(r.servers))
	for i := range r.servers {
		out = append(out, copyRecord(r.servers[i]))
	}
	return out
}

// copyRecord clones the record's slices so callers cannot reach the
// registry's backing arrays.
func copyRecord(record ServerRecord) ServerRecord {
	record.Args = append([]string(nil), record.Args...)
	record.Tools = append([]ToolDescriptor(nil), record.Tools...)
	return record
}
