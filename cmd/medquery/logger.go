package main

import (
	"fmt"
	"os"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/logger"
)

// setupLogger installs the process logger. CLI flags win over the config
// file; both fall back to info-level text on stderr. Pass a nil cfg
// before configuration is loaded.
func setupLogger(cli *CLI, cfg *config.LoggerConfig) (func(), error) {
	level := cli.LogLevel
	format := cli.LogFormat
	file := cli.LogFile
	if cfg != nil {
		if level == "" {
			level = cfg.Level
		}
		if format == "" {
			format = cfg.Format
		}
		if file == "" {
			file = cfg.File
		}
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if file != "" {
		f, closeFile, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", file, err)
		}
		output = f
		cleanup = closeFile
	}

	logger.Init(parsed, output, format)
	return cleanup, nil
}
