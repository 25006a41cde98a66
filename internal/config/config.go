package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`
	Renderer struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int64  `yaml:"timeout_seconds"`
	} `yaml:"renderer"`
	AI struct {
		Enabled bool   `yaml:"enabled"`
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`
	Redis struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"redis"`
	Ingest struct {
		MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	} `yaml:"ingest"`
}

// LoadConfig reads configuration from the specified YAML file. Secrets can
// be overridden from the environment so they stay out of the config file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if key := os.Getenv("PHISHNET_AI_API_KEY"); key != "" {
		config.AI.APIKey = key
	}
	if url := os.Getenv("PHISHNET_DATABASE_URL"); url != "" {
		config.Database.URL = url
	}

	if config.Ingest.MaxUploadBytes == 0 {
		config.Ingest.MaxUploadBytes = 5 << 20
	}
	if config.Renderer.TimeoutSeconds == 0 {
		config.Renderer.TimeoutSeconds = 90
	}
	if config.Artifacts.Dir == "" {
		config.Artifacts.Dir = "artifacts"
	}

	return config, nil
}

// RendererTimeout returns the bounded timeout for one renderer call.
func (c *Config) RendererTimeout() time.Duration {
	return time.Duration(c.Renderer.TimeoutSeconds) * time.Second
}
