// Package config loads server settings from an optional YAML file with
// environment-variable overrides. A missing API key is not fatal here: sends
// fail with a descriptive error and title generation degrades silently.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr      string `yaml:"listen_addr"`
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	TitleModel      string `yaml:"title_model"`
	DBPath          string `yaml:"db_path"`
	MaxPromptTokens int    `yaml:"max_prompt_tokens"`
	WebDir          string `yaml:"web_dir"`
}

func Default() Config {
	return Config{
		ListenAddr:      ":8100",
		BaseURL:         "https://api.groq.com/openai/v1",
		Model:           "llama-3.3-70b-versatile",
		TitleModel:      "llama-3.1-8b-instant",
		DBPath:          "streampad.db",
		MaxPromptTokens: 6000,
		WebDir:          "web",
	}
}

// Load reads the YAML file at path (empty path skips the file) over the
// defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := os.Getenv("STREAMPAD_API_KEY"); v != "" {
		cfg.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.APIKey == "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("STREAMPAD_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("STREAMPAD_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("STREAMPAD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STREAMPAD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	return cfg, nil
}
