package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Coach     CoachConfig     `json:"coach"`
	Generator GeneratorConfig `json:"generator"`
	Memory    MemoryConfig    `json:"memory"`
	Stats     StatsConfig     `json:"stats"`
	Storage   StorageConfig   `json:"storage"`
	mu        sync.RWMutex
}

type CoachConfig struct {
	Persona     string `json:"persona" env:"MINDLOOP_COACH_PERSONA"`
	DefaultMode string `json:"default_mode" env:"MINDLOOP_COACH_DEFAULT_MODE"`
}

type GeneratorConfig struct {
	// Kind selects the adapter: "pattern" (offline rule-based) or
	// "http" (OpenAI-compatible endpoint).
	Kind        string  `json:"kind" env:"MINDLOOP_GENERATOR_KIND"`
	APIBase     string  `json:"api_base" env:"MINDLOOP_GENERATOR_API_BASE"`
	APIKey      string  `json:"api_key" env:"MINDLOOP_GENERATOR_API_KEY"`
	Model       string  `json:"model" env:"MINDLOOP_GENERATOR_MODEL"`
	MaxTokens   int     `json:"max_tokens" env:"MINDLOOP_GENERATOR_MAX_TOKENS"`
	Temperature float64 `json:"temperature" env:"MINDLOOP_GENERATOR_TEMPERATURE"`
}

type MemoryConfig struct {
	MaxContextTokens     int `json:"max_context_tokens" env:"MINDLOOP_MEMORY_MAX_CONTEXT_TOKENS"`
	ResponseBufferTokens int `json:"response_buffer_tokens" env:"MINDLOOP_MEMORY_RESPONSE_BUFFER_TOKENS"`
	MaxInsights          int `json:"max_insights" env:"MINDLOOP_MEMORY_MAX_INSIGHTS"`
	MaxTriggers          int `json:"max_triggers" env:"MINDLOOP_MEMORY_MAX_TRIGGERS"`
	MaxStrategies        int `json:"max_strategies" env:"MINDLOOP_MEMORY_MAX_STRATEGIES"`
	MaxSummaries         int `json:"max_summaries" env:"MINDLOOP_MEMORY_MAX_SUMMARIES"`
}

type StatsConfig struct {
	RolloverSchedule string `json:"rollover_schedule" env:"MINDLOOP_STATS_ROLLOVER_SCHEDULE"`
}

type StorageConfig struct {
	Workspace string `json:"workspace" env:"MINDLOOP_STORAGE_WORKSPACE"`
}

func DefaultConfig() *Config {
	return &Config{
		Coach: CoachConfig{
			Persona:     "supportive",
			DefaultMode: "free",
		},
		Generator: GeneratorConfig{
			Kind:        "pattern",
			APIBase:     "http://127.0.0.1:8080/v1",
			Model:       "local-7b",
			MaxTokens:   256,
			Temperature: 0.7,
		},
		Memory: MemoryConfig{
			MaxContextTokens:     2048,
			ResponseBufferTokens: 256,
			MaxInsights:          50,
			MaxTriggers:          30,
			MaxStrategies:        20,
			MaxSummaries:         30,
		},
		Stats: StatsConfig{
			RolloverSchedule: "0 0 * * *",
		},
		Storage: StorageConfig{
			Workspace: "~/.mindloop",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Workspace)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
