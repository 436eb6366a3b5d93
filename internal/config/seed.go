package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSeed reads the universe seed document and returns it as JSON. YAML
// seeds (.yaml, .yml) are converted; anything else must already be JSON.
// A missing file surfaces as an error satisfying errors.Is(err, fs.ErrNotExist).
func LoadSeed(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing seed %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing seed %s: %w", path, err)
		}
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("seed %s: top level must be an object", path)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding seed %s: %w", path, err)
	}
	return out, nil
}
