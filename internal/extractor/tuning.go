package extractor

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Tuning is the on-disk override for extractor heuristics. Operators point
// BASTION_EXTRACTOR_TUNING_FILE at a YAML file when the fleet's shells use
// prompt shapes the default pattern misses:
//
//	prompt_pattern: '\[\w+@[\w.-]+ [^\]]*\][$#]\s*$'
//	editors: [vi, vim, nano]
//	window_size: 8192
type Tuning struct {
	PromptPattern string   `yaml:"prompt_pattern"`
	Editors       []string `yaml:"editors"`
	WindowSize    int      `yaml:"window_size"`
}

// LoadConfig builds an extractor Config, applying the tuning file at path on
// top of the defaults. An empty path returns DefaultConfig unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read tuning file: %w", err)
	}

	var t Tuning
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return cfg, fmt.Errorf("parse tuning file: %w", err)
	}

	if t.PromptPattern != "" {
		re, err := regexp.Compile(t.PromptPattern)
		if err != nil {
			return cfg, fmt.Errorf("compile prompt pattern: %w", err)
		}
		cfg.PromptPattern = re
	}
	if len(t.Editors) > 0 {
		cfg.Editors = t.Editors
	}
	if t.WindowSize > 0 {
		cfg.WindowSize = t.WindowSize
	}
	return cfg, nil
}
