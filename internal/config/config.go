// Package config loads the CLI configuration from two layers: a user file
// with credentials and model settings, and an optional per-project file.
// Optional layers fail soft; a missing user file falls back to defaults so
// first-run commands that need no model access still work.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the merged view the CLI runs with.
type Config struct {
	APIKey      string  `json:"api_key" yaml:"api_key"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`

	ProjectID   string `json:"project_id" yaml:"project_id"`
	Field       string `json:"field" yaml:"field"`
	ProjectRoot string `json:"project_root" yaml:"project_root"`
	ProtocolDir string `json:"protocol_dir" yaml:"protocol_dir"`
}

// userConfig is the user layer (~/.metacurator.json): credentials and model
// preferences that rarely change per project.
type userConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// projectConfig is the optional project layer (./metacurator.yaml).
type projectConfig struct {
	ProjectID   string `yaml:"project_id,omitempty"`
	Field       string `yaml:"field,omitempty"`
	ProjectRoot string `yaml:"project_root,omitempty"`
	Model       string `yaml:"model,omitempty"`
}

// projectFiles are the names probed for the project layer, in order.
var projectFiles = []string{"metacurator.yaml", "metacurator.yml", ".metacurator.yaml"}

// Load merges defaults, the user layer and the project layer.
func Load() (*Config, error) {
	cfg := defaults()
	if err := applyUserLayer(cfg); err != nil {
		return nil, err
	}
	applyProjectLayer(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		BaseURL:     "https://openrouter.ai/api/v1",
		Model:       "deepseek/deepseek-chat",
		Temperature: 0.3,
		MaxTokens:   4000,
	}
}

// UserConfigPath returns the location of the user layer file.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".metacurator.json"), nil
}

func applyUserLayer(cfg *Config) error {
	path, err := UserConfigPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read user config: %w", err)
	}
	var user userConfig
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("failed to parse user config %s: %w", path, err)
	}
	if user.APIKey != "" {
		cfg.APIKey = user.APIKey
	}
	if user.BaseURL != "" {
		cfg.BaseURL = user.BaseURL
	}
	if user.Model != "" {
		cfg.Model = user.Model
	}
	if user.Temperature > 0 {
		cfg.Temperature = user.Temperature
	}
	if user.MaxTokens > 0 {
		cfg.MaxTokens = user.MaxTokens
	}
	return nil
}

func applyProjectLayer(cfg *Config) {
	for _, name := range projectFiles {
		data, err := os.ReadFile(name)
		if err != nil {
			continue
		}
		var project projectConfig
		if err := yaml.Unmarshal(data, &project); err != nil {
			continue
		}
		if project.ProjectID != "" {
			cfg.ProjectID = project.ProjectID
		}
		if project.Field != "" {
			cfg.Field = project.Field
		}
		if project.ProjectRoot != "" {
			cfg.ProjectRoot = project.ProjectRoot
		}
		if project.Model != "" {
			cfg.Model = project.Model
		}
		return
	}
}

// SaveUser writes credentials and model preferences back to the user layer.
func SaveUser(cfg *Config) error {
	path, err := UserConfigPath()
	if err != nil {
		return err
	}
	user := userConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
