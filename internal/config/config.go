package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	internalsettings "github.com/router-for-me/QuizAccess/internal/settings"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvRedisAddr    = "REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = internalsettings.DefaultConfigPath
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RedisConfig holds the connection settings of an optional Redis backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"redis-enabled"`
	Addr     string `yaml:"redis-addr"`
	Password string `yaml:"redis-password"`
	DB       int    `yaml:"redis-db"`
	Prefix   string `yaml:"redis-prefix"`
}

// SessionConfig controls where verification state is kept.
type SessionConfig struct {
	RedisConfig `yaml:",inline"`
	TTL         time.Duration `yaml:"ttl"`
}

// RateLimitConfig controls verification throttling.
type RateLimitConfig struct {
	RedisConfig  `yaml:",inline"`
	VerifyLimit  int           `yaml:"verify-limit"`
	VerifyWindow time.Duration `yaml:"verify-window"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port  int  `yaml:"port"`
	Debug bool `yaml:"debug"`

	// TrustedProxies lists proxy addresses or CIDRs whose forwarding headers are honoured.
	// Empty trusts no proxy and uses the connection address.
	TrustedProxies []string `yaml:"trusted-proxies"`
}

func readConfigFile(configPath string, out any) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if errUnmarshal := yaml.Unmarshal(data, out); errUnmarshal != nil {
		return fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return nil
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	var cfg fileConfig
	if err := readConfigFile(configPath, &cfg); err != nil {
		return "", err
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: internalsettings.DefaultJWTExpiry}

	var cfg fileConfig
	if errRead := readConfigFile(configPath, &cfg); errRead == nil {
		result = cfg.JWT
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = internalsettings.DefaultJWTExpiry
	}
	return result, nil
}

// LoadServerConfig loads the listen port and debug flag, falling back to defaultPort.
func LoadServerConfig(configPath string, defaultPort int) ServerConfig {
	result := ServerConfig{Port: defaultPort}
	var cfg ServerConfig
	if errRead := readConfigFile(configPath, &cfg); errRead == nil {
		result.Debug = cfg.Debug
		for _, proxy := range cfg.TrustedProxies {
			if trimmed := strings.TrimSpace(proxy); trimmed != "" {
				result.TrustedProxies = append(result.TrustedProxies, trimmed)
			}
		}
		if cfg.Port > 0 && cfg.Port <= 65535 {
			result.Port = cfg.Port
		}
	}
	if result.Port <= 0 {
		result.Port = internalsettings.DefaultPort
	}
	return result
}

// LoadSessionConfig loads verification state storage settings.
func LoadSessionConfig(configPath string) SessionConfig {
	type fileConfig struct {
		Session SessionConfig `yaml:"session"`
	}
	var cfg fileConfig
	_ = readConfigFile(configPath, &cfg)

	result := cfg.Session
	result.RedisConfig = normalizeRedis(result.RedisConfig, internalsettings.DefaultSessionRedisPrefix)
	if result.TTL <= 0 {
		result.TTL = internalsettings.DefaultSessionTTL
	}
	return result
}

// LoadRateLimitConfig loads verification throttling settings.
func LoadRateLimitConfig(configPath string) RateLimitConfig {
	type fileConfig struct {
		RateLimit RateLimitConfig `yaml:"rate-limit"`
	}
	var cfg fileConfig
	_ = readConfigFile(configPath, &cfg)

	result := cfg.RateLimit
	result.RedisConfig = normalizeRedis(result.RedisConfig, internalsettings.DefaultRateLimitRedisPrefix)
	if result.VerifyLimit < 0 {
		result.VerifyLimit = 0
	}
	if result.VerifyLimit == 0 {
		result.VerifyLimit = internalsettings.DefaultVerifyLimit
	}
	if result.VerifyWindow < time.Second {
		result.VerifyWindow = internalsettings.DefaultVerifyWindow
	}
	return result
}

func normalizeRedis(cfg RedisConfig, defaultPrefix string) RedisConfig {
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" && cfg.Enabled {
		cfg.Addr = addr
	}
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.DB < 0 {
		cfg.DB = 0
	}
	return cfg
}
