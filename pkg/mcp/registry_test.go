package mcp

import (
	"strings"
	"testing"

	"github.com/medquery/medquery/pkg/config"
)

func httpRecord(name string) ServerRecord {
	return ServerRecord{
		Name:      name,
		Transport: config.MCPTransportHTTP,
		BaseURL:   "http://localhost:8080/mcp",
	}
}

func TestServerRegistry_Register(t *testing.T) {
	registry := NewServerRegistry()

	stored, err := registry.Register(httpRecord("pubmed-server"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if stored.ID == "" {
		t.Error("Expected an assigned server ID")
	}
	if !stored.Active {
		t.Error("Expected new server to start active")
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 server, got %d", registry.Count())
	}
}

func TestServerRegistry_RegisterDefaultsTransport(t *testing.T) {
	registry := NewServerRegistry()

	stored, err := registry.Register(ServerRecord{
		Name:    "web-browse",
		BaseURL: "http://localhost:9000/mcp",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if stored.Transport != config.MCPTransportHTTP {
		t.Errorf("Expected http transport default, got %q", stored.Transport)
	}
}

func TestServerRegistry_RegisterStdio(t *testing.T) {
	registry := NewServerRegistry()

	stored, err := registry.Register(ServerRecord{
		Name:      "filesystem",
		Transport: config.MCPTransportStdio,
		Command:   "npx",
		Args:      []string{"-y", "@modelcontextprotocol/server-filesystem", "/data"},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if stored.Command != "npx" {
		t.Errorf("Expected command to be stored, got %q", stored.Command)
	}
}

func TestServerRegistry_RegisterValidation(t *testing.T) {
	registry := NewServerRegistry()

	if _, err := registry.Register(ServerRecord{BaseURL: "http://localhost"}); err == nil {
		t.Error("Expected error for missing name")
	}
	if _, err := registry.Register(ServerRecord{Name: "a", Transport: config.MCPTransportHTTP}); err == nil {
		t.Error("Expected error for http server without base_url")
	}
	if _, err := registry.Register(ServerRecord{Name: "b", Transport: config.MCPTransportStdio}); err == nil {
		t.Error("Expected error for stdio server without command")
	}
	if _, err := registry.Register(ServerRecord{Name: "c", Transport: "grpc", BaseURL: "http://x"}); err == nil {
		t.Error("Expected error for unknown transport")
	}
	if registry.Count() != 0 {
		t.Errorf("Expected empty registry after failed registrations, got %d", registry.Count())
	}
}

func TestServerRegistry_RegisterDuplicateName(t *testing.T) {
	registry := NewServerRegistry()

	if _, err := registry.Register(httpRecord("pubmed-server")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := registry.Register(httpRecord("pubmed-server"))
	if err == nil {
		t.Fatal("Expected error for duplicate server name")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestServerRegistry_GetNotFound(t *testing.T) {
	registry := NewServerRegistry()

	_, err := registry.Get("missing-id")
	if err == nil {
		t.Fatal("Expected error for unknown server ID")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestServerRegistry_ListOrder(t *testing.T) {
	registry := NewServerRegistry()

	names := []string{"web-browse", "filesystem-server", "pubmed-server"}
	for _, name := range names {
		if _, err := registry.Register(httpRecord(name)); err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
	}

	listed := registry.List()
	if len(listed) != len(names) {
		t.Fatalf("Expected %d servers, got %d", len(names), len(listed))
	}
	for i, name := range names {
		if listed[i].Name != name {
			t.Errorf("Expected server %d to be %s, got %s", i, name, listed[i].Name)
		}
	}
}

func TestServerRegistry_ActivateDeactivate(t *testing.T) {
	registry := NewServerRegistry()

	stored, err := registry.Register(httpRecord("pubmed-server"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := registry.Deactivate(stored.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if len(registry.ListActive()) != 0 {
		t.Error("Expected no active servers after deactivation")
	}

	got, err := registry.Get(stored.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Active {
		t.Error("Expected server to be inactive")
	}

	if err := registry.Activate(stored.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if len(registry.ListActive()) != 1 {
		t.Error("Expected one active server after reactivation")
	}

	if err := registry.Activate("missing-id"); err == nil {
		t.Error("Expected error activating unknown server")
	}
}

func TestServerRegistry_Remove(t *testing.T) {
	registry := NewServerRegistry()

	first, _ := registry.Register(httpRecord("web-browse"))
	second, _ := registry.Register(httpRecord("filesystem-server"))
	third, _ := registry.Register(httpRecord("pubmed-server"))

	if err := registry.Remove(second.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	listed := registry.List()
	if len(listed) != 2 {
		t.Fatalf("Expected 2 servers after removal, got %d", len(listed))
	}
	if listed[0].ID != first.ID || listed[1].ID != third.ID {
		t.Error("Expected remaining servers to keep registration order")
	}

	if err := registry.Remove(second.ID); err == nil {
		t.Error("Expected error removing a server twice")
	}
}

func TestServerRegistry_SetTools(t *testing.T) {
	registry := NewServerRegistry()

	stored, _ := registry.Register(httpRecord("pubmed-server"))

	tools := []ToolDescriptor{
		{Name: "pubmed_search", Description: "Search PubMed", InputSchema: map[string]any{"type": "object"}},
	}
	if err := registry.SetTools(stored.ID, tools); err != nil {
		t.Fatalf("SetTools failed: %v", err)
	}

	got, err := registry.Get(stored.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Tools) != 1 || got.Tools[0].Name != "pubmed_search" {
		t.Errorf("Expected stored tools, got %+v", got.Tools)
	}

	if err := registry.SetTools("missing-id", tools); err == nil {
		t.Error("Expected error for unknown server ID")
	}
}

func TestServerRegistry_SnapshotIsolation(t *testing.T) {
	registry := NewServerRegistry()

	stored, _ := registry.Register(httpRecord("pubmed-server"))

	snapshot := registry.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("Expected 1 server in snapshot, got %d", len(snapshot))
	}

	// Registry changes after the snapshot must not leak into it.
	if err := registry.Deactivate(stored.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if err := registry.SetTools(stored.ID, []ToolDescriptor{{Name: "pubmed_search"}}); err != nil {
		t.Fatalf("SetTools failed: %v", err)
	}

	if !snapshot[0].Active {
		t.Error("Snapshot should still show the server active")
	}
	if len(snapshot[0].Tools) != 0 {
		t.Error("Snapshot should still show no tools")
	}

	// Nor the other way around.
	snapshot[0].Name = "mutated"
	got, _ := registry.Get(stored.ID)
	if got.Name != "pubmed-server" {
		t.Errorf("Registry record mutated through snapshot: %q", got.Name)
	}
}
