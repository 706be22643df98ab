package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/router-for-me/QuizAccess/internal/config"
	"github.com/router-for-me/QuizAccess/internal/db"
	"github.com/router-for-me/QuizAccess/internal/security"
	internalsettings "github.com/router-for-me/QuizAccess/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "quizaccess.db"

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
	}, "&")
}

// CheckDatabaseConnection validates that the DSN can connect and ping.
func CheckDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// configFile is the layout of a generated config file.
type configFile struct {
	Port        int          `yaml:"port"`
	DatabaseDSN string       `yaml:"database-dsn"`
	Debug       bool         `yaml:"debug"`
	JWT         jwtCfg       `yaml:"jwt"`
	Session     sessionCfg   `yaml:"session"`
	RateLimit   rateLimitCfg `yaml:"rate-limit"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// sessionCfg holds verification state settings for the generated config file.
type sessionCfg struct {
	RedisEnabled bool   `yaml:"redis-enabled"`
	RedisPrefix  string `yaml:"redis-prefix"`
	TTL          string `yaml:"ttl"`
}

// rateLimitCfg holds throttling settings for the generated config file.
type rateLimitCfg struct {
	RedisEnabled bool   `yaml:"redis-enabled"`
	RedisPrefix  string `yaml:"redis-prefix"`
	VerifyLimit  int    `yaml:"verify-limit"`
	VerifyWindow string `yaml:"verify-window"`
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, port int) error {
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		Debug:       false,
		JWT: jwtCfg{
			Secret: generateJWTSecret(),
			Expiry: internalsettings.DefaultJWTExpiry.String(),
		},
		Session: sessionCfg{
			RedisPrefix: internalsettings.DefaultSessionRedisPrefix,
			TTL:         internalsettings.DefaultSessionTTL.String(),
		},
		RateLimit: rateLimitCfg{
			RedisPrefix:  internalsettings.DefaultRateLimitRedisPrefix,
			VerifyLimit:  internalsettings.DefaultVerifyLimit,
			VerifyWindow: internalsettings.DefaultVerifyWindow.String(),
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// InitConfig writes a SQLite-backed config file when none exists and no DSN is
// supplied through the environment. It reports whether a file was written.
func InitConfig(cfg config.AppConfig, sqlitePath string, port int) (bool, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	if ConfigExists(configPath) || strings.TrimSpace(os.Getenv(config.EnvDBConnection)) != "" {
		return false, nil
	}
	if strings.TrimSpace(sqlitePath) == "" {
		sqlitePath = filepath.Join(filepath.Dir(configPath), defaultSQLitePath)
	}
	dsn := buildSQLiteDSN(sqlitePath)
	if errCheck := CheckDatabaseConnection(dsn); errCheck != nil {
		return false, errCheck
	}
	if errWrite := WriteConfigFile(configPath, dsn, port); errWrite != nil {
		return false, errWrite
	}
	log.WithFields(log.Fields{"config": configPath, "database": sqlitePath}).Info("wrote initial config")
	return true, nil
}
