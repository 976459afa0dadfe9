package config

import (
	"os"
	"strconv"
)

// FromEnv overlays LOCQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LOCQ_QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("LOCQ_FLUSH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FlushThreshold = n
		}
	}
	if v := os.Getenv("LOCQ_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FlushIntervalMs = n
		}
	}
	if v := os.Getenv("LOCQ_UPLOAD_URL"); v != "" {
		cfg.Upload.URL = v
	}
	if v := os.Getenv("LOCQ_UPLOAD_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upload.TimeoutMs = n
		}
	}
	if v := os.Getenv("LOCQ_UPLOAD_TOKEN"); v != "" {
		cfg.Upload.AuthToken = v
	}
}
