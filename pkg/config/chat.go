package config

import "fmt"

// ChatConfig configures the chat orchestrator.
type ChatConfig struct {
	// DefaultProvider names the LLM instance used when a request does
	// not pick one.
	DefaultProvider string `yaml:"default_provider,omitempty" json:"default_provider,omitempty" jsonschema:"title=Default Provider,description=LLM instance used by default,default=default"`

	// MaxToolRounds caps agent-mode tool invocation rounds per request.
	MaxToolRounds int `yaml:"max_tool_rounds,omitempty" json:"max_tool_rounds,omitempty" jsonschema:"title=Max Tool Rounds,description=Tool invocation rounds per agent request,default=8"`
}

// SetDefaults applies default values.
func (c *ChatConfig) SetDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = "default"
	}
	if c.MaxToolRounds == 0 {
		c.MaxToolRounds = 8
	}
}

// Validate checks the chat configuration.
func (c *ChatConfig) Validate() error {
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("max_tool_rounds must be at least 1, got %d", c.MaxToolRounds)
	}
	return nil
}
