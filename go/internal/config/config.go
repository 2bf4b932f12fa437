package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration, loaded from YAML with environment
// overrides.
type Config struct {
	Service struct {
		// WSBaseURL is the realtime endpoint, e.g. wss://play.example.com
		WSBaseURL string `yaml:"ws_base_url"`
		// HTTPBaseURL is the query/fallback endpoint.
		HTTPBaseURL string `yaml:"http_base_url"`
		APIKey      string `yaml:"api_key"`
		ClientType  string `yaml:"client_type"`
		TokenFile   string `yaml:"token_file"`
		TokenEnv    string `yaml:"token_env"`
	} `yaml:"service"`

	Relay struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
		HealthAddr    string `yaml:"health_addr"`
	} `yaml:"relay"`

	History struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"history"`
}

// Load reads the config file and applies environment overrides.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Service.WSBaseURL = getEnv("QUIZLINK_WS_URL", config.Service.WSBaseURL)
	config.Service.HTTPBaseURL = getEnv("QUIZLINK_HTTP_URL", config.Service.HTTPBaseURL)
	config.Service.APIKey = getEnv("QUIZLINK_API_KEY", config.Service.APIKey)
	config.Relay.URL = getEnv("QUIZLINK_NATS_URL", config.Relay.URL)

	if config.Service.ClientType == "" {
		config.Service.ClientType = "player"
	}
	if config.Service.TokenEnv == "" {
		config.Service.TokenEnv = "QUIZLINK_TOKEN"
	}

	if config.Service.WSBaseURL == "" {
		return nil, fmt.Errorf("ws_base_url is required (or set QUIZLINK_WS_URL)")
	}
	if config.Service.HTTPBaseURL == "" {
		return nil, fmt.Errorf("http_base_url is required (or set QUIZLINK_HTTP_URL)")
	}
	return &config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
