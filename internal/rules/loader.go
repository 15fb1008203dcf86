package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"threat-detector/internal/model"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []model.Rule `yaml:"rules" json:"rules"`
}

// LoadRulesFromJSON loads rules from a JSON configuration file
func LoadRulesFromJSON(filename string) ([]model.Rule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return file.Rules, nil
}

// LoadRulesFromYAML loads rules from a YAML configuration file
func LoadRulesFromYAML(filename string) ([]model.Rule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules file: %w", err)
	}
	return file.Rules, nil
}

// LoadRules picks the decoder from the file extension, trying YAML then
// JSON when the extension is unknown.
func LoadRules(filename string) ([]model.Rule, error) {
	if filename == "" {
		return nil, fmt.Errorf("rules file path is empty")
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return LoadRulesFromYAML(filename)
	case ".json":
		return LoadRulesFromJSON(filename)
	}

	if rules, err := LoadRulesFromYAML(filename); err == nil {
		return rules, nil
	}
	return LoadRulesFromJSON(filename)
}
