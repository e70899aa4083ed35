// Package config defines the medquery configuration model.
//
// Configuration is declarative YAML (or JSON) with named provider
// instances: llms, embedders, and databases are maps from instance
// name to provider config, and the search and chat sections reference
// instances by name. Every section carries SetDefaults and Validate
// so an empty file yields a working zero-config setup.
package config

import (
	"fmt"

	"github.com/medquery/medquery/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	// Logging configures structured log output.
	Logging LoggerConfig `yaml:"logging,omitempty" json:"logging,omitempty" jsonschema:"title=Logging"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server"`

	// Observability configures tracing and metrics.
	Observability *observability.Config `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability"`

	// LLMs are named generation providers.
	LLMs map[string]*LLMConfig `yaml:"llms,omitempty" json:"llms,omitempty" jsonschema:"title=LLMs,description=Named LLM provider instances"`

	// Embedders are named embedding providers.
	Embedders map[string]*EmbedderConfig `yaml:"embedders,omitempty" json:"embedders,omitempty" jsonschema:"title=Embedders,description=Named embedder instances"`

	// Databases are named vector stores.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty" jsonschema:"title=Databases,description=Named vector store instances"`

	// Search configures document retrieval.
	Search SearchConfig `yaml:"search,omitempty" json:"search,omitempty" jsonschema:"title=Search"`

	// Chat configures the orchestrator.
	Chat ChatConfig `yaml:"chat,omitempty" json:"chat,omitempty" jsonschema:"title=Chat"`

	// MCP configures tool servers and dispatch.
	MCP MCPConfig `yaml:"mcp,omitempty" json:"mcp,omitempty" jsonschema:"title=MCP"`
}

func (c *Config) initializeMaps() {
	if c.LLMs == nil {
		c.LLMs = make(map[string]*LLMConfig)
	}
	if c.Embedders == nil {
		c.Embedders = make(map[string]*EmbedderConfig)
	}
	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
}

// SetDefaults applies defaults across all sections. Empty provider
// maps gain a "default" instance so a zero config still runs.
func (c *Config) SetDefaults() {
	c.initializeMaps()

	if len(c.LLMs) == 0 {
		c.LLMs["default"] = &LLMConfig{}
	}
	if len(c.Embedders) == 0 {
		c.Embedders["default"] = &EmbedderConfig{}
	}
	if len(c.Databases) == 0 {
		c.Databases["default"] = &DatabaseConfig{}
	}

	for name := range c.LLMs {
		if c.LLMs[name] != nil {
			c.LLMs[name].SetDefaults()
		}
	}
	for name := range c.Embedders {
		if c.Embedders[name] != nil {
			c.Embedders[name].SetDefaults()
		}
	}
	for name := range c.Databases {
		if c.Databases[name] != nil {
			c.Databases[name].SetDefaults()
		}
	}

	c.Logging.SetDefaults()
	c.Server.SetDefaults()
	c.Search.SetDefaults()
	c.Chat.SetDefaults()
	c.MCP.SetDefaults()

	if c.Observability == nil {
		c.Observability = &observability.Config{}
	}
	c.Observability.SetDefaults()
}

// Validate checks every section and the cross-section references.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	for name, llm := range c.LLMs {
		if llm != nil {
			if err := llm.Validate(); err != nil {
				return fmt.Errorf("llm '%s' validation failed: %w", name, err)
			}
		}
	}
	for name, embedder := range c.Embedders {
		if embedder != nil {
			if err := embedder.Validate(); err != nil {
				return fmt.Errorf("embedder '%s' validation failed: %w", name, err)
			}
		}
	}
	for name, db := range c.Databases {
		if db != nil {
			if err := db.Validate(); err != nil {
				return fmt.Errorf("database '%s' validation failed: %w", name, err)
			}
		}
	}

	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search validation failed: %w", err)
	}
	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat validation failed: %w", err)
	}
	if err := c.MCP.Validate(); err != nil {
		return fmt.Errorf("mcp validation failed: %w", err)
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability validation failed: %w", err)
		}
	}

	if err := c.validateReferences(); err != nil {
		return fmt.Errorf("reference validation failed: %w", err)
	}

	return nil
}

// validateReferences checks that by-name references point at defined
// instances.
func (c *Config) validateReferences() error {
	if c.Search.Embedder != "" {
		if _, exists := c.Embedders[c.Search.Embedder]; !exists {
			return fmt.Errorf("search: embedder '%s' not found (available: %v)",
				c.Search.Embedder, mapKeys(c.Embedders))
		}
	}
	if c.Search.Database != "" {
		if _, exists := c.Databases[c.Search.Database]; !exists {
			return fmt.Errorf("search: database '%s' not found (available: %v)",
				c.Search.Database, mapKeys(c.Databases))
		}
	}
	if c.Chat.DefaultProvider != "" {
		if _, exists := c.LLMs[c.Chat.DefaultProvider]; !exists {
			return fmt.Errorf("chat: default_provider '%s' not found (available: %v)",
				c.Chat.DefaultProvider, mapKeys(c.LLMs))
		}
	}
	return nil
}

func mapKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
