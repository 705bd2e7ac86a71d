// Package common provides shared utilities for the daoctl worker.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the daoctl worker process.
type Config struct {
	Environment string        `toml:"environment"`
	Worker      WorkerConfig  `toml:"worker"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Logging     LoggingConfig `toml:"logging"`
}

// WorkerConfig holds platform-wide Manager settings (spec §6 "Platform-wide"
// configuration surface).
type WorkerConfig struct {
	Workers                int    `toml:"workers"`
	GracefulShutdownSeconds int    `toml:"graceful_shutdown_seconds"`
	DeadLetterCapacity      int    `toml:"dead_letter_capacity"`
	MonitoringDedupMode     string `toml:"monitoring_dedup_mode"` // "strict" | "conservative" | "off"
}

// StorageConfig holds the SurrealDB-backed QueueStore connection settings.
type StorageConfig struct {
	Queue QueueStoreConfig `toml:"queue"`
}

// QueueStoreConfig configures the SurrealDB connection used by
// internal/storage/queuestore.
type QueueStoreConfig struct {
	Endpoint  string `toml:"endpoint"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the connection timeout duration.
func (c *QueueStoreConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ClientsConfig holds external collaborator client configurations.
type ClientsConfig struct {
	Blockchain BlockchainConfig `toml:"blockchain"`
	AI         AIConfig         `toml:"ai"`
	Social     SocialConfig     `toml:"social"`
}

// BlockchainConfig configures clients.BlockchainClient.
type BlockchainConfig struct {
	RPCEndpoint       string `toml:"rpc_endpoint"`
	RateLimit         int    `toml:"rate_limit"` // requests per second
	Timeout           string `toml:"timeout"`
	FundingSigningKey string `toml:"funding_signing_key"` // HMAC key for funding-request assertions
	TreasuryWallet    string `toml:"treasury_wallet"`
}

// GetTimeout parses and returns the RPC timeout duration.
func (c *BlockchainConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// AIConfig configures clients.AIClient, backed by google.golang.org/genai.
type AIConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// SocialConfig configures clients.SocialClient.
type SocialConfig struct {
	Endpoint  string `toml:"endpoint"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level" mapstructure:"level"`
	Format     string   `toml:"format" mapstructure:"format"`
	Outputs    []string `toml:"outputs" mapstructure:"outputs"`
	FilePath   string   `toml:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int      `toml:"max_backups" mapstructure:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults, mirroring the
// RegistryDefaults/platform-wide defaults named in spec §6.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Worker: WorkerConfig{
			Workers:                 5,
			GracefulShutdownSeconds: 30,
			DeadLetterCapacity:      1000,
			MonitoringDedupMode:     "strict",
		},
		Storage: StorageConfig{
			Queue: QueueStoreConfig{
				Endpoint:  "ws://localhost:8000/rpc",
				Namespace: "daoctl",
				Database:  "daoctl",
				Timeout:   "10s",
			},
		},
		Clients: ClientsConfig{
			Blockchain: BlockchainConfig{
				RateLimit: 5,
				Timeout:   "30s",
			},
			AI: AIConfig{
				Model: "gemini-2.0-flash",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/daoctl.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides,
// merging each path in order (later files override earlier).
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config. This
// is the general ambient overlay; the platform's own <JOB_TYPE>_* overlay
// (internal/platform/overlay.go) is layered on top, scoped to job
// descriptors only (SPEC_FULL §1).
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DAOCTL_ENV"); env != "" {
		config.Environment = env
	}
	if level := os.Getenv("DAOCTL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.Workers = n
		}
	}
	if v := os.Getenv("GRACEFUL_SHUTDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.GracefulShutdownSeconds = n
		}
	}
	if v := os.Getenv("DEAD_LETTER_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.DeadLetterCapacity = n
		}
	}
	if v := os.Getenv("MONITORING_DEDUP_MODE"); v != "" {
		config.Worker.MonitoringDedupMode = strings.ToLower(v)
	}

	if v := os.Getenv("DAOCTL_QUEUE_ENDPOINT"); v != "" {
		config.Storage.Queue.Endpoint = v
	}
	if v := os.Getenv("DAOCTL_QUEUE_NAMESPACE"); v != "" {
		config.Storage.Queue.Namespace = v
	}
	if v := os.Getenv("DAOCTL_QUEUE_DATABASE"); v != "" {
		config.Storage.Queue.Database = v
	}
	if v := os.Getenv("DAOCTL_QUEUE_USERNAME"); v != "" {
		config.Storage.Queue.Username = v
	}
	if v := os.Getenv("DAOCTL_QUEUE_PASSWORD"); v != "" {
		config.Storage.Queue.Password = v
	}

	if v := os.Getenv("DAOCTL_BLOCKCHAIN_RPC_ENDPOINT"); v != "" {
		config.Clients.Blockchain.RPCEndpoint = v
	}
	if v := os.Getenv("DAOCTL_BLOCKCHAIN_FUNDING_SIGNING_KEY"); v != "" {
		config.Clients.Blockchain.FundingSigningKey = v
	}
	if v := os.Getenv("DAOCTL_TREASURY_WALLET"); v != "" {
		config.Clients.Blockchain.TreasuryWallet = v
	}
	if v := os.Getenv("DAOCTL_AI_API_KEY"); v != "" {
		config.Clients.AI.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" && config.Clients.AI.APIKey == "" {
		config.Clients.AI.APIKey = v
	}
	if v := os.Getenv("DAOCTL_SOCIAL_ENDPOINT"); v != "" {
		config.Clients.Social.Endpoint = v
	}
	if v := os.Getenv("DAOCTL_SOCIAL_API_KEY"); v != "" {
		config.Clients.Social.APIKey = v
	}
	if v := os.Getenv("DAOCTL_SOCIAL_API_SECRET"); v != "" {
		config.Clients.Social.APISecret = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// EnvConfigSource adapts the process environment to platform.ConfigSource,
// used to drive the <JOB_TYPE>_* overlay (spec §4.1).
type EnvConfigSource struct{}

// GetString reports the named environment variable's value and whether it
// was set at all.
func (EnvConfigSource) GetString(key string) (string, bool) {
	return os.LookupEnv(key)
}
