package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = "8080"

	// DefaultStore keeps requests in process memory.
	DefaultStore = StoreMemory
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the runtime configuration read from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Store       string `env:"DOCFLOW_STORE" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"DOCFLOW_REDIS_PREFIX" envDefault:"docflow"`

	// SnapshotFile, when set, is loaded at startup and written at shutdown.
	SnapshotFile string `env:"DOCFLOW_SNAPSHOT_FILE"`

	// ReviewerApprovalRoute is "preparer" or "approver".
	ReviewerApprovalRoute string `env:"DOCFLOW_REVIEWER_APPROVAL_ROUTE" envDefault:"preparer"`
}

// LoadEnv loads the env files that exist, without overriding variables
// already set. It returns how many files were read.
func LoadEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database url is required for the postgres store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis url is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store %q (memory, postgres, redis)", c.Store)
	}

	switch c.ReviewerApprovalRoute {
	case "preparer", "approver":
	default:
		return fmt.Errorf("unknown reviewer approval route %q (preparer, approver)", c.ReviewerApprovalRoute)
	}
	return nil
}
