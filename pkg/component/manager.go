// Package component assembles the runtime object graph from configuration.
//
// The manager owns the provider registries (LLMs, embedders, vector stores)
// and the services built on top of them: document search, tool dispatch, and
// the chat orchestrator. Construction is eager, so a configuration that names
// a broken provider fails at startup rather than on the first request.
package component

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/medquery/medquery/pkg/chat"
	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/databases"
	"github.com/medquery/medquery/pkg/embedders"
	"github.com/medquery/medquery/pkg/llms"
	"github.com/medquery/medquery/pkg/mcp"
	"github.com/medquery/medquery/pkg/rag"
)

// ComponentManager holds all component registries and the services
// assembled from them.
type ComponentManager struct {
	globalConfig *config.Config

	llmRegistry      *llms.LLMRegistry
	embedderRegistry *embedders.EmbedderRegistry
	dbRegistry       *databases.DatabaseRegistry

	searchService  *rag.SearchService
	serverRegistry *mcp.ServerRegistry
	dispatcher     *mcp.Dispatcher
	schemaRegistry *mcp.SchemaRegistry
	orchestrator   *chat.Orchestrator
}

// NewComponentManager creates every component the configuration names.
// Instances are registered in name order, so registry iteration stays
// deterministic regardless of map ordering.
func NewComponentManager(globalConfig *config.Config) (*ComponentManager, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	cm := &ComponentManager{
		globalConfig:     globalConfig,
		llmRegistry:      llms.NewLLMRegistry(),
		embedderRegistry: embedders.NewEmbedderRegistry(),
		dbRegistry:       databases.NewDatabaseRegistry(),
		schemaRegistry:   mcp.DefaultSchemaRegistry(),
	}

	for _, name := range sortedNames(globalConfig.LLMs) {
		if _, err := cm.llmRegistry.CreateLLMFromConfig(name, globalConfig.LLMs[name]); err != nil {
			return nil, fmt.Errorf("failed to initialize LLM '%s': %w", name, err)
		}
	}
	for _, name := range sortedNames(globalConfig.Embedders) {
		if _, err := cm.embedderRegistry.CreateEmbedderFromConfig(name, globalConfig.Embedders[name]); err != nil {
			return nil, fmt.Errorf("failed to initialize embedder '%s': %w", name, err)
		}
	}
	for _, name := range sortedNames(globalConfig.Databases) {
		if _, err := cm.dbRegistry.CreateDatabaseFromConfig(name, globalConfig.Databases[name]); err != nil {
			return nil, fmt.Errorf("failed to initialize database '%s': %w", name, err)
		}
	}

	if err := cm.initSearchService(); err != nil {
		return nil, err
	}
	if err := cm.initToolServers(); err != nil {
		return nil, err
	}

	orchestrator, err := chat.NewOrchestrator(
		&globalConfig.Chat,
		cm.llmRegistry,
		cm.searchService,
		cm.serverRegistry,
		cm.dispatcher,
		cm.schemaRegistry,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	cm.orchestrator = orchestrator

	return cm, nil
}

// initSearchService wires the search pipeline to the embedder and database
// instances the search section names.
func (cm *ComponentManager) initSearchService() error {
	searchConfig := &cm.globalConfig.Search

	embedder, err := cm.embedderRegistry.GetEmbedder(searchConfig.Embedder)
	if err != nil {
		return fmt.Errorf("search references unknown embedder '%s': %w", searchConfig.Embedder, err)
	}
	database, err := cm.dbRegistry.GetDatabase(searchConfig.Database)
	if err != nil {
		return fmt.Errorf("search references unknown database '%s': %w", searchConfig.Database, err)
	}

	service, err := rag.NewSearchService(searchConfig, embedder, database)
	if err != nil {
		return fmt.Errorf("failed to initialize search service: %w", err)
	}
	cm.searchService = service
	return nil
}

// initToolServers seeds the server registry from configuration and builds
// the dispatcher. Configured servers are registered but not contacted;
// DiscoverTools makes the network calls.
func (cm *ComponentManager) initToolServers() error {
	cm.serverRegistry = mcp.NewServerRegistry()

	for _, serverConfig := range cm.globalConfig.MCP.Servers {
		record := mcp.ServerRecord{
			Name:        serverConfig.Name,
			Description: serverConfig.Description,
			Transport:   serverConfig.Transport,
			BaseURL:     serverConfig.BaseURL,
			Command:     serverConfig.Command,
			Args:        serverConfig.Args,
			APIKey:      serverConfig.APIKey,
		}
		if _, err := cm.serverRegistry.Register(record); err != nil {
			return fmt.Errorf("failed to register MCP server '%s': %w", serverConfig.Name, err)
		}
	}

	cm.dispatcher = mcp.NewDispatcher(&cm.globalConfig.MCP)
	return nil
}

// DiscoverTools queries every registered MCP server for its tool listing.
// Failures are logged and skipped: an unreachable server stays registered
// and can be activated once it comes up.
func (cm *ComponentManager) DiscoverTools(ctx context.Context) {
	for _, record := range cm.serverRegistry.List() {
		if _, err := cm.serverRegistry.DiscoverTools(ctx, record.ID); err != nil {
			slog.Warn("Tool discovery failed",
				"server", record.Name,
				"error", err)
		}
	}
}

// GetGlobalConfig returns the configuration the manager was built from.
func (cm *ComponentManager) GetGlobalConfig() *config.Config {
	return cm.globalConfig
}

// GetLLMRegistry returns the LLM registry.
func (cm *ComponentManager) GetLLMRegistry() *llms.LLMRegistry {
	return cm.llmRegistry
}

// GetEmbedderRegistry returns the embedder registry.
func (cm *ComponentManager) GetEmbedderRegistry() *embedders.EmbedderRegistry {
	return cm.embedderRegistry
}

// GetDatabaseRegistry returns the vector store registry.
func (cm *ComponentManager) GetDatabaseRegistry() *databases.DatabaseRegistry {
	return cm.dbRegistry
}

// GetSearchService returns the document search service.
func (cm *ComponentManager) GetSearchService() *rag.SearchService {
	return cm.searchService
}

// GetServerRegistry returns the MCP server registry.
func (cm *ComponentManager) GetServerRegistry() *mcp.ServerRegistry {
	return cm.serverRegistry
}

// GetDispatcher returns the tool dispatcher.
func (cm *ComponentManager) GetDispatcher() *mcp.Dispatcher {
	return cm.dispatcher
}

// GetSchemaRegistry returns the tool schema registry.
func (cm *ComponentManager) GetSchemaRegistry() *mcp.SchemaRegistry {
	return cm.schemaRegistry
}

// GetOrchestrator returns the chat orchestrator.
func (cm *ComponentManager) GetOrchestrator() *chat.Orchestrator {
	return cm.orchestrator
}

// GetLLM returns a named LLM instance.
func (cm *ComponentManager) GetLLM(name string) (llms.LLMProvider, error) {
	return cm.llmRegistry.GetLLM(name)
}

// GetEmbedder returns a named embedder instance.
func (cm *ComponentManager) GetEmbedder(name string) (embedders.EmbedderProvider, error) {
	return cm.embedderRegistry.GetEmbedder(name)
}

// GetDatabase returns a named vector store instance.
func (cm *ComponentManager) GetDatabase(name string) (databases.DatabaseProvider, error) {
	return cm.dbRegistry.GetDatabase(name)
}

// Close releases every provider and the tool dispatcher. All components
// are closed even when some fail; the errors are joined.
func (cm *ComponentManager) Close() error {
	var errs []error

	for _, provider := range cm.llmRegistry.List() {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing LLM provider: %w", err))
		}
	}
	for _, provider := range cm.embedderRegistry.List() {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder provider: %w", err))
		}
	}
	for _, provider := range cm.dbRegistry.List() {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database provider: %w", err))
		}
	}
	if cm.dispatcher != nil {
		if err := cm.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing tool dispatcher: %w", err))
		}
	}

	return errors.Join(errs...)
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
