package config

import (
	"fmt"
	"time"
)

// SearchConfig configures document retrieval.
type SearchConfig struct {
	// Collection is the vector store collection to search.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty" jsonschema:"title=Collection,description=Vector store collection name,default=medquery"`

	// TopK is the number of documents to retrieve per query.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"title=Top K,description=Documents retrieved per query,default=3"`

	// Threshold is the minimum similarity score. Results scoring below
	// it are dropped. Zero keeps everything the store returns.
	Threshold float32 `yaml:"threshold,omitempty" json:"threshold,omitempty" jsonschema:"title=Threshold,description=Minimum similarity score,default=0"`

	// Timeout bounds a single search round trip, embedding included.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,default=30s"`

	// Embedder names the embedder instance to use.
	Embedder string `yaml:"embedder,omitempty" json:"embedder,omitempty" jsonschema:"title=Embedder,description=Embedder instance name,default=default"`

	// Database names the vector store instance to use.
	Database string `yaml:"database,omitempty" json:"database,omitempty" jsonschema:"title=Database,description=Database instance name,default=default"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.Collection == "" {
		c.Collection = "medquery"
	}
	if c.TopK == 0 {
		c.TopK = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Embedder == "" {
		c.Embedder = "default"
	}
	if c.Database == "" {
		c.Database = "default"
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.TopK)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %g", c.Threshold)
	}
	return nil
}
