package config

import (
	"fmt"
	"time"
)

// DatabaseType identifies the vector store backend.
type DatabaseType string

const (
	DatabaseTypeChromem  DatabaseType = "chromem"
	DatabaseTypeQdrant   DatabaseType = "qdrant"
	DatabaseTypePinecone DatabaseType = "pinecone"
)

// DatabaseConfig configures a vector store instance.
type DatabaseConfig struct {
	// Type is the vector store backend: "chromem" (embedded, default),
	// "qdrant", or "pinecone".
	Type DatabaseType `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Type,description=Vector store backend,enum=chromem,enum=qdrant,enum=pinecone,default=chromem"`

	// Host for qdrant.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,description=Server hostname (qdrant)"`

	// Port for qdrant (gRPC).
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,description=Server gRPC port (qdrant),default=6334"`

	// APIKey for authenticated stores (qdrant cloud, pinecone).
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=API key (use ${ENV_VAR})"`

	// UseTLS enables TLS connections (qdrant).
	UseTLS bool `yaml:"use_tls,omitempty" json:"use_tls,omitempty" jsonschema:"title=Use TLS,description=Enable TLS for the connection"`

	// Path enables chromem file persistence. Empty means in-memory.
	Path string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"title=Path,description=Persistence directory for chromem (in-memory when empty)"`

	// Compress enables gzip compression for chromem persistence.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty" jsonschema:"title=Compress,description=Gzip-compress chromem persistence files"`

	// IndexHost for pinecone (the index-specific host from the console).
	IndexHost string `yaml:"index_host,omitempty" json:"index_host,omitempty" jsonschema:"title=Index Host,description=Pinecone index host"`

	// Timeout bounds store operations.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,description=Operation timeout,default=30s"`
}

// SetDefaults applies default values.
func (c *DatabaseConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeChromem
	}
	if c.Type == DatabaseTypeQdrant {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Type {
	case DatabaseTypeChromem:
		// Embedded, nothing required.
	case DatabaseTypeQdrant:
		if c.Host == "" {
			return fmt.Errorf("host is required for qdrant")
		}
		if c.Port <= 0 {
			return fmt.Errorf("port must be positive for qdrant")
		}
	case DatabaseTypePinecone:
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for pinecone")
		}
		if c.IndexHost == "" {
			return fmt.Errorf("index_host is required for pinecone")
		}
	default:
		return fmt.Errorf("invalid database type %q (valid: chromem, qdrant, pinecone)", c.Type)
	}
	return nil
}

// IsEmbedded returns true for embedded vector stores (chromem).
func (c *DatabaseConfig) IsEmbedded() bool {
	return c.Type == DatabaseTypeChromem
}
