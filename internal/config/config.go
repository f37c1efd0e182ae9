// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"results-portal/internal/auth"
	"results-portal/internal/models"
)

// Workbook storage backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the complete service configuration
type Config struct {
	Admin    AdminConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Workbook WorkbookConfig
	Database DatabaseConfig
	Cache    CacheConfig
}

// AdminConfig holds the single administrator credential, given either as
// a plaintext password or as its hex SHA-256 digest
type AdminConfig struct {
	Username       string
	Password       string
	PasswordSHA256 string
}

// NewVerifier builds the credential verifier from whichever form is set
func (c AdminConfig) NewVerifier() (*auth.Verifier, error) {
	if c.PasswordSHA256 != "" {
		return auth.NewVerifierFromDigest(c.Username, c.PasswordSHA256)
	}
	return auth.NewVerifier(c.Username, c.Password)
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level       string
	Environment string
}

// Production reports whether logs should be emitted as JSON
func (c LoggingConfig) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// WorkbookConfig selects where the current workbook is persisted
type WorkbookConfig struct {
	Backend      string
	Path         string
	TempDir      string
	SyncInterval time.Duration
}

// DatabaseConfig holds PostgreSQL settings for the postgres backend
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds grade summary cache settings
type CacheConfig struct {
	SummaryTTL time.Duration
}

// LoadConfig reads .env when present, then the process environment.
// Malformed values are reported as a ConfigError naming the variable.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var p parser
	cfg := &Config{
		Admin: AdminConfig{
			Username:       p.str("ADMIN_USERNAME", auth.DefaultUsername),
			Password:       os.Getenv("ADMIN_PASSWORD"),
			PasswordSHA256: p.str("ADMIN_PASSWORD_SHA256", ""),
		},
		Server: ServerConfig{
			Host:           p.str("SERVER_HOST", "0.0.0.0"),
			Port:           p.int("SERVER_PORT", 8080),
			ReadTimeout:    p.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   p.duration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:    p.duration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxUploadBytes: int64(p.int("MAX_UPLOAD_MB", 32)) << 20,
		},
		Logging: LoggingConfig{
			Level:       p.str("LOG_LEVEL", "info"),
			Environment: p.str("ENV", "development"),
		},
		Workbook: WorkbookConfig{
			Backend:      strings.ToLower(p.str("WORKBOOK_BACKEND", BackendFile)),
			Path:         p.str("WORKBOOK_PATH", "uploaded_results.xlsx"),
			TempDir:      p.str("WORKBOOK_TEMP_DIR", os.TempDir()),
			SyncInterval: p.duration("WORKBOOK_SYNC_INTERVAL", 5*time.Second),
		},
		Database: DatabaseConfig{
			Host:            p.str("DB_HOST", "localhost"),
			Port:            p.int("DB_PORT", 5432),
			User:            p.str("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        p.str("DB_NAME", "results_portal"),
			SSLMode:         p.str("DB_SSLMODE", "disable"),
			MaxOpenConns:    p.int("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    p.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: p.duration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Cache: CacheConfig{
			SummaryTTL: p.duration("SUMMARY_CACHE_TTL", 10*time.Minute),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges
func (c *Config) Validate() error {
	if c.Admin.Password == "" && c.Admin.PasswordSHA256 == "" {
		return &models.ConfigError{Key: "ADMIN_PASSWORD", Message: "an administrator password or ADMIN_PASSWORD_SHA256 is required"}
	}
	if c.Admin.Password != "" && c.Admin.PasswordSHA256 != "" {
		return &models.ConfigError{Key: "ADMIN_PASSWORD_SHA256", Message: "set either ADMIN_PASSWORD or ADMIN_PASSWORD_SHA256, not both"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &models.ConfigError{Key: "SERVER_PORT", Message: fmt.Sprintf("port %d out of range", c.Server.Port)}
	}
	if c.Server.MaxUploadBytes <= 0 {
		return &models.ConfigError{Key: "MAX_UPLOAD_MB", Message: "must be positive"}
	}
	if c.Cache.SummaryTTL <= 0 {
		return &models.ConfigError{Key: "SUMMARY_CACHE_TTL", Message: "must be positive"}
	}
	if c.Workbook.SyncInterval < 0 {
		return &models.ConfigError{Key: "WORKBOOK_SYNC_INTERVAL", Message: "must not be negative"}
	}

	switch c.Workbook.Backend {
	case BackendFile:
		if c.Workbook.Path == "" {
			return &models.ConfigError{Key: "WORKBOOK_PATH", Message: "must not be empty"}
		}
	case BackendPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			return &models.ConfigError{Key: "DB_HOST", Message: "postgres backend needs DB_HOST and DB_NAME"}
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return &models.ConfigError{Key: "DB_PORT", Message: fmt.Sprintf("port %d out of range", c.Database.Port)}
		}
	default:
		return &models.ConfigError{
			Key:     "WORKBOOK_BACKEND",
			Message: fmt.Sprintf("unknown backend %q, expected %q or %q", c.Workbook.Backend, BackendFile, BackendPostgres),
		}
	}

	return nil
}

// parser reads typed values and keeps the first error
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, fmt.Sprintf("invalid integer %q", v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, fmt.Sprintf("invalid duration %q", v))
		return def
	}
	return d
}

func (p *parser) fail(key, message string) {
	if p.err == nil {
		p.err = &models.ConfigError{Key: key, Message: message}
	}
}
