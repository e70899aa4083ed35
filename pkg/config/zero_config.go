package config

import (
	"path/filepath"

	"github.com/medquery/medquery/pkg/utils"
)

// ZeroConfig builds a runnable configuration without a config file.
// Provider instances come from environment API keys (OPENAI_API_KEY and
// friends, picked up by SetDefaults), and the embedded vector store
// persists under the .medquery data directory so indexed documents
// survive restarts.
func ZeroConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()

	if dataDir, err := utils.EnsureDataDir("."); err == nil {
		for _, db := range cfg.Databases {
			if db.Type == DatabaseTypeChromem && db.Path == "" {
				db.Path = filepath.Join(dataDir, "vectors")
				db.Compress = true
			}
		}
	}

	return cfg
}
