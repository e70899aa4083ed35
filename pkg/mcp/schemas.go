package mcp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/medquery/medquery/pkg/protocol"
)

// WebSearchArgs are the arguments of the built-in web_search tool.
type WebSearchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=The search query"`
	NumResults int    `json:"num_results,omitempty" jsonschema:"description=Number of results to return,default=5"`
}

// ReadFileArgs are the arguments of the built-in read_file tool.
type ReadFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file to read"`
}

// PubmedSearchArgs are the arguments of the built-in pubmed_search tool.
type PubmedSearchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=The search query for PubMed"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results,default=10"`
}

// reflectSchema builds a JSON schema for a tool argument struct from
// its json and jsonschema tags.
func reflectSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	// The model wants a bare object schema, not a full document.
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")

	if schemaMap["type"] != "object" {
		return schemaMap, nil
	}

	result := map[string]any{
		"type":       "object",
		"properties": schemaMap["properties"],
	}
	if required, ok := schemaMap["required"]; ok {
		result["required"] = required
	}
	if addProps, ok := schemaMap["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	return result, nil
}

// mustReflectSchema is reflectSchema for the built-in catalogue, where
// a reflection failure is a programming error.
func mustReflectSchema[T any]() map[string]any {
	schema, err := reflectSchema[T]()
	if err != nil {
		panic(fmt.Sprintf("failed to reflect tool schema: %v", err))
	}
	return schema
}

// SchemaRegistry holds the tool schemas advertised to the model.
// Listing preserves registration order so the catalogue is stable
// across requests.
type SchemaRegistry struct {
	mu      sync.RWMutex
	order   []string
	schemas map[string]protocol.ToolSchema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		schemas: make(map[string]protocol.ToolSchema),
	}
}

// DefaultSchemaRegistry returns a registry seeded with the built-in
// catalogue: web_search, read_file and pubmed_search.
func DefaultSchemaRegistry() *SchemaRegistry {
	registry := NewSchemaRegistry()
	for _, schema := range builtinSchemas() {
		// Built-in schemas always carry a name, Register cannot fail.
		_ = registry.Register(schema)
	}
	return registry
}

func builtinSchemas() []protocol.ToolSchema {
	return []protocol.ToolSchema{
		{
			Name:        "web_search",
			Description: "Search the web for information",
			Parameters:  mustReflectSchema[WebSearchArgs](),
		},
		{
			Name:        "read_file",
			Description: "Read contents of a file",
			Parameters:  mustReflectSchema[ReadFileArgs](),
		},
		{
			Name:        "pubmed_search",
			Description: "Search PubMed database for medical literature",
			Parameters:  mustReflectSchema[PubmedSearchArgs](),
		},
	}
}

// Register adds a schema. Re-registering a name replaces the schema in
// its original position.
func (r *SchemaRegistry) Register(schema protocol.ToolSchema) error {
	if schema.Name == "" {
		return fmt.Errorf("tool schema name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.schemas[schema.Name] = schema
	return nil
}

// Get returns the schema registered under name.
func (r *SchemaRegistry) Get(name string) (protocol.ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[name]
	return schema, ok
}

// List returns all schemas in registration order.
func (r *SchemaRegistry) List() []protocol.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}
