package utils

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/corefin/metrichub/internal/logger"
)

// WorkerConfig tunes the task executor pool. Values come from an optional
// YAML file (WORKER_CONFIG_PATH); env vars win over file values.
type WorkerConfig struct {
	Workers            int `yaml:"workers"`
	PollIntervalMillis int `yaml:"poll_interval_millis"`
	TaskTimeoutSeconds int `yaml:"task_timeout_seconds"`
	UpsertRetries      int `yaml:"upsert_retries"`
	CellParallelism    int `yaml:"cell_parallelism"`
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Workers:            2,
		PollIntervalMillis: 1000,
		TaskTimeoutSeconds: 600,
		UpsertRetries:      3,
		CellParallelism:    4,
	}
}

func LoadWorkerConfig(log *logger.Logger) WorkerConfig {
	cfg := DefaultWorkerConfig()
	if path := GetEnv("WORKER_CONFIG_PATH", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if log != nil {
				log.Warn("Could not read worker config file, using defaults", "path", path, "error", err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			if log != nil {
				log.Warn("Could not parse worker config file, using defaults", "path", path, "error", err)
			}
			cfg = DefaultWorkerConfig()
		}
	}
	cfg.Workers = GetEnvAsInt("TASK_WORKERS", cfg.Workers, log)
	cfg.PollIntervalMillis = GetEnvAsInt("TASK_POLL_INTERVAL_MS", cfg.PollIntervalMillis, log)
	cfg.TaskTimeoutSeconds = GetEnvAsInt("TASK_TIMEOUT_SECONDS", cfg.TaskTimeoutSeconds, log)
	cfg.UpsertRetries = GetEnvAsInt("TASK_UPSERT_RETRIES", cfg.UpsertRetries, log)
	cfg.CellParallelism = GetEnvAsInt("TASK_CELL_PARALLELISM", cfg.CellParallelism, log)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CellParallelism < 1 {
		cfg.CellParallelism = 1
	}
	return cfg
}
