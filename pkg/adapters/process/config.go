package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one external command exposed as a tool.
type Config struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile is the layout of a tools file.
type ConfigFile struct {
	Tools []Config `yaml:"tools" json:"tools"`
}

// LoadTools reads a YAML or JSON tools file, keyed by tool name. A missing
// file yields no tools.
func LoadTools(path string) (map[string]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]Config{}, nil
		}
		return nil, fmt.Errorf("read tools file: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse tools file %s: %w", path, err)
	}

	tools := make(map[string]Config, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			continue
		}
		if tool.Command == "" {
			return nil, fmt.Errorf("tool %q has no command", tool.Name)
		}
		tools[tool.Name] = tool
	}
	return tools, nil
}
