package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path (if present), merges environment
// variables on top, and validates the result. A missing file is not an
// error; env-only deployments are supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Infof("config file %s not found, using defaults + environment", path)
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.mergeEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// mergeEnv applies environment overrides. Shared pool slots follow the
// numbered RELAY_SID_n / RELAY_TOKEN_n convention; numbering starts at 1 and
// stops at the first unset SID so slot order is stable.
func (c *Config) mergeEnv() {
	if v := os.Getenv("RELAY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("RELAY_DEBUG"); v != "" {
		c.Debug = v != "false" && v != "0"
	}
	if v := os.Getenv("RELAY_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("RELAY_MANAGEMENT_KEY"); v != "" {
		c.ManagementKey = v
	}
	if v := os.Getenv("RELAY_MANAGEMENT_KEY_HASH"); v != "" {
		c.ManagementKeyHash = v
	}
	if v := os.Getenv("RELAY_STORAGE_BACKEND"); v != "" {
		c.StorageBackend = v
	}
	if v := os.Getenv("RELAY_STORAGE_BASE_DIR"); v != "" {
		c.StorageBaseDir = v
	}
	if v := os.Getenv("RELAY_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("RELAY_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("RELAY_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("RELAY_MONGODB_URI"); v != "" {
		c.MongoDBURI = v
	}
	if v := os.Getenv("RELAY_MONGODB_DATABASE"); v != "" {
		c.MongoDatabase = v
	}
	if v := os.Getenv("RELAY_POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("RELAY_PROVIDER_BASE_URL"); v != "" {
		c.ProviderBaseURL = v
	}
	if v := os.Getenv("RELAY_BOT_TOKEN"); v != "" {
		c.BotToken = v
	}
	if v := os.Getenv("RELAY_ADMIN_PRINCIPAL"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.AdminPrincipal = n
		}
	}
	if v := os.Getenv("RELAY_REQUIRED_GROUPS"); v != "" {
		parts := strings.Split(v, ",")
		groups := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				groups = append(groups, p)
			}
		}
		if len(groups) > 0 {
			c.RequiredGroups = groups
		}
	}
	if v := os.Getenv("RELAY_TRUST_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TrustTTLHours = n
		}
	}

	c.mergeEnvAccounts()
}

func (c *Config) mergeEnvAccounts() {
	var accounts []SharedAccount
	for i := 1; ; i++ {
		sid := os.Getenv(fmt.Sprintf("RELAY_SID_%d", i))
		if sid == "" {
			break
		}
		token := os.Getenv(fmt.Sprintf("RELAY_TOKEN_%d", i))
		if token == "" {
			log.Warnf("RELAY_SID_%d set without RELAY_TOKEN_%d, skipping slot", i, i)
			continue
		}
		accounts = append(accounts, SharedAccount{SID: sid, Token: token})
	}
	if len(accounts) > 0 {
		c.SharedAccounts = accounts
	}
}
