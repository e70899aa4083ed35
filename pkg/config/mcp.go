package config

import (
	"fmt"
	"time"
)

// MCPTransport identifies how an MCP server is reached.
type MCPTransport string

const (
	MCPTransportHTTP  MCPTransport = "http"
	MCPTransportStdio MCPTransport = "stdio"
)

// MCPServerConfig describes one MCP tool server.
type MCPServerConfig struct {
	// Name identifies the server. Dispatch matches tool categories
	// against it by substring, so names like "pubmed-search" route
	// the "pubmed" category.
	Name string `yaml:"name" json:"name" jsonschema:"title=Name,description=Server name (matched against tool categories)"`

	// Transport is "http" (default) or "stdio".
	Transport MCPTransport `yaml:"transport,omitempty" json:"transport,omitempty" jsonschema:"title=Transport,enum=http,enum=stdio,default=http"`

	// BaseURL is the endpoint for http transport.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Server endpoint (http transport)"`

	// Command launches the server process for stdio transport.
	Command string `yaml:"command,omitempty" json:"command,omitempty" jsonschema:"title=Command,description=Server executable (stdio transport)"`

	// Args are passed to Command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" jsonschema:"title=Args,description=Arguments for Command"`

	// APIKey is sent as a bearer token on http transport.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=Bearer token (use ${ENV_VAR})"`

	// Description is shown in server listings.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description"`
}

// SetDefaults applies default values.
func (c *MCPServerConfig) SetDefaults() {
	if c.Transport == "" {
		c.Transport = MCPTransportHTTP
	}
}

// Validate checks one server entry.
func (c *MCPServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch c.Transport {
	case MCPTransportHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("base_url is required for http transport")
		}
	case MCPTransportStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio transport")
		}
	default:
		return fmt.Errorf("invalid transport %q (valid: http, stdio)", c.Transport)
	}
	return nil
}

// MCPConfig configures tool dispatch.
type MCPConfig struct {
	// CallTimeout bounds a single tool invocation.
	CallTimeout time.Duration `yaml:"call_timeout,omitempty" json:"call_timeout,omitempty" jsonschema:"title=Call Timeout,description=Timeout per tool invocation,default=30s"`

	// FunctionCategories maps tool function names to routing
	// categories. Entries here overlay the built-in defaults.
	FunctionCategories map[string]string `yaml:"function_categories,omitempty" json:"function_categories,omitempty" jsonschema:"title=Function Categories,description=Tool name to routing category overrides"`

	// Servers lists the known tool servers, in routing order.
	Servers []MCPServerConfig `yaml:"servers,omitempty" json:"servers,omitempty" jsonschema:"title=Servers,description=MCP tool servers"`
}

// defaultFunctionCategories routes the built-in tool names.
func defaultFunctionCategories() map[string]string {
	return map[string]string{
		"web_search":      "web-browse",
		"read_file":       "filesystem",
		"pubmed_search":   "pubmed",
		"neo4j_query":     "neo4j",
		"marklogic_query": "marklogic",
	}
}

// SetDefaults applies default values. User-supplied category entries
// overlay the built-in map rather than replacing it.
func (c *MCPConfig) SetDefaults() {
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	merged := defaultFunctionCategories()
	for fn, category := range c.FunctionCategories {
		merged[fn] = category
	}
	c.FunctionCategories = merged
	for i := range c.Servers {
		c.Servers[i].SetDefaults()
	}
}

// Validate checks the MCP configuration.
func (c *MCPConfig) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("server %d: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate server name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
