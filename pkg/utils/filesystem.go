package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDataDir ensures the .medquery data directory exists at the given base
// path. If basePath is empty or ".", it creates ./.medquery in the current
// directory. Local vector stores persist their collections under it.
func EnsureDataDir(basePath string) (string, error) {
	var dataDir string
	if basePath == "" || basePath == "." {
		dataDir = ".medquery"
	} else {
		dataDir = filepath.Join(basePath, ".medquery")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory at '%s': %w", dataDir, err)
	}

	return dataDir, nil
}
