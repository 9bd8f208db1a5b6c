// Package config handles Scout configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./scout.yaml, ~/.config/scout/config.yaml, /etc/scout/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"scout.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scout", "config.yaml"))
	}

	paths = append(paths, "/etc/scout/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Scout configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Models   ModelsConfig   `yaml:"models"`
	Search   SearchConfig   `yaml:"search"`
	Markets  MarketsConfig  `yaml:"markets"`
	Weather  WeatherConfig  `yaml:"weather"`
	Agent    AgentConfig    `yaml:"agent"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines which model handles which job. Chat drives the
// agent loop; Summary reduces search results; Title generates thread
// titles. All three go through the same OpenAI-compatible endpoint.
type ModelsConfig struct {
	BaseURL string `yaml:"base_url"` // e.g. https://api.groq.com/openai/v1
	APIKey  string `yaml:"api_key"`
	Chat    string `yaml:"chat"`
	Summary string `yaml:"summary"`
	Title   string `yaml:"title"`
}

// SearchConfig defines the web search provider settings.
type SearchConfig struct {
	Provider string `yaml:"provider"` // currently only "tavily"
	APIKey   string `yaml:"api_key"`
}

// MarketsConfig defines the stock quote provider settings.
type MarketsConfig struct {
	APIKey string `yaml:"api_key"` // Alpha Vantage key
}

// WeatherConfig defines the weather provider settings.
type WeatherConfig struct {
	APIKey string `yaml:"api_key"` // weatherstack access key
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	// MaxToolIterations caps how many model/tool round trips a single
	// turn may take before the loop forces a text answer. Zero means
	// the default (10).
	MaxToolIterations int `yaml:"max_tool_iterations"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8080},
		DataDir: ".",
		Models: ModelsConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Chat:    "meta-llama/llama-4-scout-17b-16e-instruct",
			Summary: "openai/gpt-oss-120b",
			Title:   "openai/gpt-oss-120b",
		},
		Search: SearchConfig{Provider: "tavily"},
		Agent:  AgentConfig{MaxToolIterations: 10},
	}
}
