package main

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/medquery/medquery/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config      string `arg:"" help:"Configuration file path." type:"path"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	_ = config.LoadEnvFilesFor(c.Config)

	cfg, loader, err := config.LoadConfigFile(ctx, c.Config)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	defer loader.Close()

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("%s is valid\n", c.Config)
	fmt.Printf("   llms: %d, embedders: %d, databases: %d, mcp servers: %d\n",
		len(cfg.LLMs), len(cfg.Embedders), len(cfg.Databases), len(cfg.MCP.Servers))
	return nil
}
