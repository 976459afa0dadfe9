package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// QueueName selects the keyspace the queue persists under. One process
	// normally owns exactly one queue; the name exists so tests and
	// multi-driver installs can keep state apart.
	QueueName string `json:"queueName" yaml:"queueName"`

	// FlushThreshold is the queue size at which an append triggers a flush.
	FlushThreshold int `json:"flushThreshold" yaml:"flushThreshold"`

	// FlushIntervalMs is the auto-flush tick interval in milliseconds.
	FlushIntervalMs int `json:"flushIntervalMs" yaml:"flushIntervalMs"`

	Upload UploadConfig `json:"upload" yaml:"upload"`
}

// UploadConfig describes the remote ingestion endpoint.
type UploadConfig struct {
	// URL is the batch ingestion endpoint. Empty means delivery is disabled
	// and flushes fail until configured; samples stay queued.
	URL string `json:"url" yaml:"url"`

	// TimeoutMs bounds one delivery round trip.
	TimeoutMs int `json:"timeoutMs" yaml:"timeoutMs"`

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string `json:"authToken" yaml:"authToken"`
}

// FlushInterval returns the auto-flush interval as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// UploadTimeout returns the delivery timeout as a duration.
func (c UploadConfig) UploadTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		QueueName:       "default",
		FlushThreshold:  10,
		FlushIntervalMs: 30_000,
		Upload: UploadConfig{
			TimeoutMs: 15_000,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.FlushThreshold < 1 {
		return fmt.Errorf("config: flushThreshold must be >= 1, got %d", c.FlushThreshold)
	}
	if c.FlushIntervalMs < 0 {
		return fmt.Errorf("config: flushIntervalMs must be >= 0, got %d", c.FlushIntervalMs)
	}
	return nil
}
