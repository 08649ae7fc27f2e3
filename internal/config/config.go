package config

import (
	"fmt"
	"strings"
	"time"
)

// SharedAccount is one pre-seeded shared pool slot from configuration.
type SharedAccount struct {
	SID   string `yaml:"sid" json:"sid"`
	Token string `yaml:"token" json:"-"`
}

// Config is the runtime configuration for the relay. Values come from the
// YAML file merged with environment variables; env wins.
type Config struct {
	// Server settings
	Port    int    `yaml:"port" json:"port"`
	Debug   bool   `yaml:"debug" json:"debug"`
	LogFile string `yaml:"log_file" json:"log_file"`

	// Management API auth
	ManagementKey     string `yaml:"management_key" json:"-"`
	ManagementKeyHash string `yaml:"management_key_hash" json:"-"`

	// Durable store
	StorageBackend string `yaml:"storage_backend" json:"storage_backend"`
	StorageBaseDir string `yaml:"storage_base_dir" json:"storage_base_dir"`
	RedisAddr      string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword  string `yaml:"redis_password" json:"-"`
	RedisDB        int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix" json:"redis_prefix"`
	MongoDBURI     string `yaml:"mongodb_uri" json:"-"`
	MongoDatabase  string `yaml:"mongodb_database" json:"mongodb_database"`
	PostgresDSN    string `yaml:"postgres_dsn" json:"-"`

	// Provider (telephony backend)
	ProviderBaseURL    string `yaml:"provider_base_url" json:"provider_base_url"`
	ProviderTimeoutSec int    `yaml:"provider_timeout_sec" json:"provider_timeout_sec"`
	ProbeTimeoutSec    int    `yaml:"probe_timeout_sec" json:"probe_timeout_sec"`

	// Shared account pool, in rotation priority order. Blank slots are
	// skipped at load so operators can leave numbered env vars unset.
	SharedAccounts []SharedAccount `yaml:"shared_accounts" json:"-"`
	BulkPoolLimit  int             `yaml:"bulk_pool_limit" json:"bulk_pool_limit"`

	// Membership gate
	BotToken        string   `yaml:"bot_token" json:"-"`
	TelegramAPIBase string   `yaml:"telegram_api_base" json:"telegram_api_base"`
	RequiredGroups  []string `yaml:"required_groups" json:"required_groups"`
	AdminPrincipal  int64    `yaml:"admin_principal" json:"admin_principal"`
	TrustTTLHours   int      `yaml:"trust_ttl_hours" json:"trust_ttl_hours"`

	// Retry policy shared by probe and oracle callers
	RetryMax             int `yaml:"retry_max" json:"retry_max"`
	RetryIntervalSec     int `yaml:"retry_interval_sec" json:"retry_interval_sec"`
	RetryMaxIntervalSec  int `yaml:"retry_max_interval_sec" json:"retry_max_interval_sec"`
	RateLimitPauseSec    int `yaml:"rate_limit_pause_sec" json:"rate_limit_pause_sec"`
	OracleRatePerSecond  int `yaml:"oracle_rate_per_second" json:"oracle_rate_per_second"`

	// Notification sink pacing
	NotifyRatePerSecond int `yaml:"notify_rate_per_second" json:"notify_rate_per_second"`
	NotifyBurst         int `yaml:"notify_burst" json:"notify_burst"`
}

// Default returns the configuration used when no file and no env overrides
// are present.
func Default() *Config {
	return &Config{
		Port:                8085,
		StorageBackend:      "file",
		StorageBaseDir:      "./data",
		RedisPrefix:         "numrelay:",
		MongoDatabase:       "numrelay",
		ProviderBaseURL:     "https://api.twilio.com",
		ProviderTimeoutSec:  30,
		ProbeTimeoutSec:     10,
		BulkPoolLimit:       30,
		TelegramAPIBase:     "https://api.telegram.org",
		RetryMax:            3,
		RetryIntervalSec:    2,
		RetryMaxIntervalSec: 30,
		RateLimitPauseSec:   5,
		OracleRatePerSecond: 10,
		NotifyRatePerSecond: 25,
		NotifyBurst:         5,
	}
}

// ProviderTimeout returns the per-call provider timeout.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

// ProbeTimeout returns the per-call probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}

// TrustTTL returns the optional ledger staleness window; zero disables it.
func (c *Config) TrustTTL() time.Duration {
	return time.Duration(c.TrustTTLHours) * time.Hour
}

// Validate rejects configurations the relay cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.StorageBackend {
	case "file", "redis", "mongodb", "postgres":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}
	if c.StorageBackend == "file" && strings.TrimSpace(c.StorageBaseDir) == "" {
		return fmt.Errorf("storage_base_dir required for file backend")
	}
	if c.StorageBackend == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("redis_addr required for redis backend")
	}
	if c.StorageBackend == "mongodb" && strings.TrimSpace(c.MongoDBURI) == "" {
		return fmt.Errorf("mongodb_uri required for mongodb backend")
	}
	if c.StorageBackend == "postgres" && strings.TrimSpace(c.PostgresDSN) == "" {
		return fmt.Errorf("postgres_dsn required for postgres backend")
	}
	if len(c.RequiredGroups) == 0 {
		return fmt.Errorf("at least one required group must be configured")
	}
	if c.BulkPoolLimit <= 0 {
		return fmt.Errorf("bulk_pool_limit must be positive")
	}
	return nil
}
