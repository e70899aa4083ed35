package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/medquery/medquery"
	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/config/provider"
	"github.com/medquery/medquery/pkg/runtime"
)

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Port  int  `help:"Override the HTTP port from the config."`
	Watch bool `help:"Watch configuration for changes and reload."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	// Re-init with the config file's logging section now that it is known.
	cleanup, err := setupLogger(cli, &cfg.Logging)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	var opts []runtime.Option
	if c.Watch && loader != nil {
		opts = append(opts, runtime.WithConfigWatch(loader))
	}

	rt, err := runtime.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	printStartupInfo(cfg)

	return rt.Start(ctx)
}

// loadConfig resolves the configuration from a remote source, a file, or
// the environment, in that order of explicitness.
func loadConfig(ctx context.Context, cli *CLI) (*config.Config, *config.Loader, error) {
	if cli.ConfigSource != "" && cli.ConfigSource != "file" {
		sourceType, err := provider.ParseType(cli.ConfigSource)
		if err != nil {
			return nil, nil, err
		}
		cfg, loader, err := config.LoadConfig(ctx, provider.ProviderConfig{
			Type:      sourceType,
			Path:      cli.Config,
			Endpoints: cli.ConfigEndpoints,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		slog.Info("Loaded configuration", "source", cli.ConfigSource, "path", cli.Config)
		return cfg, loader, nil
	}

	if cli.Config != "" {
		_ = config.LoadEnvFilesFor(cli.Config)
		cfg, loader, err := config.LoadConfigFile(ctx, cli.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		slog.Info("Loaded configuration", "path", cli.Config)
		return cfg, loader, nil
	}

	cfg := config.ZeroConfig()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("no config file given and environment defaults are incomplete (set OPENAI_API_KEY or pass --config): %w", err)
	}
	slog.Info("Using zero-config mode")
	return cfg, nil, nil
}

func printStartupInfo(cfg *config.Config) {
	address := cfg.Server.Address()

	fmt.Printf("\nMedQuery %s ready\n", medquery.Version)
	fmt.Printf("   Chat:     http://%s/api/chat\n", address)
	fmt.Printf("   Search:   http://%s/api/rag/search\n", address)
	fmt.Printf("   MCP:      http://%s/api/mcp/servers\n", address)
	fmt.Printf("   Health:   http://%s/api/health\n", address)
	if cfg.Observability != nil && cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:  http://%s:%d/metrics\n", cfg.Server.Host, cfg.Observability.Metrics.Port)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
