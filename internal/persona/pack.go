package persona

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Pack is an optional YAML prompt pack that overrides the built-in persona
// prompts. All fields are optional; blank fields keep the defaults.
type Pack struct {
	// System overrides the persona system prompt. Placeholders: {{name}},
	// {{gender}}, {{traits}}, {{language}}, {{user}}.
	System string `yaml:"system"`
	// Confirm overrides the instruction used to voice a single action report.
	Confirm string `yaml:"confirm"`
	// Fuse overrides the instruction used to merge multiple answer parts.
	Fuse string `yaml:"fuse"`
	// Vocabulary extends the classifier keyword set.
	Vocabulary []string `yaml:"vocabulary"`
}

// LoadPack reads a prompt pack from a YAML file. A blank path or a missing
// file yields an empty pack, which means built-in prompts everywhere.
func LoadPack(path string, logger *slog.Logger) (*Pack, error) {
	if path == "" {
		return &Pack{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("prompt pack not found, using built-in prompts", "path", path)
		return &Pack{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompt pack: %w", err)
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse prompt pack %s: %w", path, err)
	}
	logger.Info("loaded prompt pack", "path", path, "vocabulary_extras", len(pack.Vocabulary))
	return &pack, nil
}
