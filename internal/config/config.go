// Package config содержит логику чтения конфигурации хаба и мобильного агента.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// HubConfig содержит параметры конфигурации сервера-хаба.
type HubConfig struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	DocumentsDir string `env:"DOCUMENTS_DIR"`
}

// ParseHub считывает конфигурацию хаба из флагов командной строки и переменных окружения.
func ParseHub() (*HubConfig, error) {
	cfg := &HubConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envDocumentsDir := cfg.DocumentsDir

	flag.StringVar(&cfg.RunAddress, "a", "0.0.0.0:3001", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.DocumentsDir, "s", "shared_documents", "shared documents directory")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envDocumentsDir != "" {
		cfg.DocumentsDir = envDocumentsDir
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "0.0.0.0:3001"
	}

	return cfg, nil
}

// AgentConfig содержит параметры конфигурации мобильного агента синхронизации.
type AgentConfig struct {
	HubAddress     string        `env:"HUB_ADDRESS"`
	DataDir        string        `env:"DATA_DIR"`
	Operator       string        `env:"OPERATOR"`
	SyncInterval   time.Duration `env:"SYNC_INTERVAL"`
	MaxAttempts    int           `env:"MAX_SYNC_ATTEMPTS"`
	MaxQueueSize   int           `env:"MAX_QUEUE_SIZE"`
	BackoffBase    time.Duration `env:"RETRY_BACKOFF_BASE"`
	BackoffCap     time.Duration `env:"RETRY_BACKOFF_CAP"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// ParseAgent считывает конфигурацию агента из флагов командной строки и переменных окружения.
func ParseAgent() (*AgentConfig, error) {
	cfg := &AgentConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envHubAddress := cfg.HubAddress
	envDataDir := cfg.DataDir
	envOperator := cfg.Operator
	envSyncInterval := cfg.SyncInterval
	envMaxAttempts := cfg.MaxAttempts
	envMaxQueueSize := cfg.MaxQueueSize
	envBackoffBase := cfg.BackoffBase
	envBackoffCap := cfg.BackoffCap
	envRequestTimeout := cfg.RequestTimeout

	flag.StringVar(&cfg.HubAddress, "r", "http://localhost:3001", "hub server address")
	flag.StringVar(&cfg.DataDir, "p", "picker-data", "local data directory")
	flag.StringVar(&cfg.Operator, "o", "", "operator name")
	flag.DurationVar(&cfg.SyncInterval, "i", 5*time.Minute, "periodic sync interval")
	flag.IntVar(&cfg.MaxAttempts, "m", 3, "max sync attempts per queue entry")
	flag.IntVar(&cfg.MaxQueueSize, "q", 1000, "max entries per queue kind")
	flag.DurationVar(&cfg.BackoffBase, "b", 5*time.Second, "retry backoff base delay")
	flag.DurationVar(&cfg.BackoffCap, "c", 5*time.Minute, "retry backoff delay cap")
	flag.DurationVar(&cfg.RequestTimeout, "t", 15*time.Second, "per-request timeout")

	flag.Parse()

	if envHubAddress != "" {
		cfg.HubAddress = envHubAddress
	}
	if envDataDir != "" {
		cfg.DataDir = envDataDir
	}
	if envOperator != "" {
		cfg.Operator = envOperator
	}
	if envSyncInterval != 0 {
		cfg.SyncInterval = envSyncInterval
	}
	if envMaxAttempts != 0 {
		cfg.MaxAttempts = envMaxAttempts
	}
	if envMaxQueueSize != 0 {
		cfg.MaxQueueSize = envMaxQueueSize
	}
	if envBackoffBase != 0 {
		cfg.BackoffBase = envBackoffBase
	}
	if envBackoffCap != 0 {
		cfg.BackoffCap = envBackoffCap
	}
	if envRequestTimeout != 0 {
		cfg.RequestTimeout = envRequestTimeout
	}

	return cfg, nil
}
