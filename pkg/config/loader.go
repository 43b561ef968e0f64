package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file, overlays it on the defaults, and
// validates the result. The format is chosen by extension: .cue for CUE,
// .yaml or .yml for YAML.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	switch filepath.Ext(path) {
	case ".cue":
		err = decodeCUE(content, path, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeCUE(content []byte, path string, cfg *Config) error {
	val := cuecontext.New().CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return err
	}
	return val.Decode(cfg)
}
