// Command medquery runs the medical knowledge chat service.
//
// Usage:
//
//	medquery serve --config config.yaml
//	medquery serve                        (zero-config, uses OPENAI_API_KEY)
//	medquery validate config.yaml
//	medquery schema
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/medquery/medquery"
	"github.com/medquery/medquery/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the JSON Schema for the configuration."`

	Config          string   `short:"c" help:"Config location: a file path, or a key path for remote sources." type:"path"`
	ConfigSource    string   `name:"config-source" help:"Config source: file (default), consul, etcd, or zookeeper."`
	ConfigEndpoints []string `name:"config-endpoints" help:"Endpoints for remote config sources (comma-separated)."`

	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides the config file."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json). Overrides the config file."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(medquery.GetVersion().String())
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("medquery"),
		kong.Description("MedQuery - medical knowledge chat with retrieval and tools"),
		kong.UsageOnError(),
	)

	cleanup, err := setupLogger(&cli, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
