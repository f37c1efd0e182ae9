package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"results-portal/internal/auth"
	"results-portal/internal/models"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("WORKBOOK_BACKEND", "")
	t.Setenv("MAX_UPLOAD_MB", "")
	t.Setenv("WORKBOOK_PATH", "")
	t.Setenv("SUMMARY_CACHE_TTL", "")
	t.Setenv("WORKBOOK_SYNC_INTERVAL", "")
	t.Setenv("ADMIN_PASSWORD_SHA256", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(32<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, BackendFile, cfg.Workbook.Backend)
	assert.Equal(t, "uploaded_results.xlsx", cfg.Workbook.Path)
	assert.Equal(t, 10*time.Minute, cfg.Cache.SummaryTTL)
	assert.Equal(t, 5*time.Second, cfg.Workbook.SyncInterval)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ADMIN_USERNAME", "registrar")
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("WORKBOOK_BACKEND", "Postgres")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("SUMMARY_CACHE_TTL", "30s")
	t.Setenv("ENV", "production")
	t.Setenv("WORKBOOK_SYNC_INTERVAL", "0s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "registrar", cfg.Admin.Username)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Workbook.Backend)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 30*time.Second, cfg.Cache.SummaryTTL)
	assert.True(t, cfg.Logging.Production())
	assert.Equal(t, time.Duration(0), cfg.Workbook.SyncInterval)
}

func TestAdminConfig_NewVerifier(t *testing.T) {
	digest := auth.HashPassword("s3cret")

	tests := []struct {
		name  string
		admin AdminConfig
	}{
		{"plaintext", AdminConfig{Username: "admin", Password: "s3cret"}},
		{"digest", AdminConfig{Username: "admin", PasswordSHA256: digest}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.admin.NewVerifier()
			require.NoError(t, err)

			ok, err := v.Login("admin", "s3cret")
			assert.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLoadConfig_PasswordDigest(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("ADMIN_PASSWORD_SHA256", auth.HashPassword("s3cret"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	_, err = cfg.Admin.NewVerifier()
	assert.NoError(t, err)
}

func TestLoadConfig_MalformedValue(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")

	_, err := LoadConfig()
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "SERVER_PORT", cfgErr.Key)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Admin:    AdminConfig{Username: "admin", Password: "s3cret"},
			Server:   ServerConfig{Port: 8080, MaxUploadBytes: 1 << 20},
			Workbook: WorkbookConfig{Backend: BackendFile, Path: "results.xlsx"},
			Database: DatabaseConfig{Host: "localhost", Port: 5432, Database: "results"},
			Cache:    CacheConfig{SummaryTTL: time.Minute},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"missing password", func(c *Config) { c.Admin.Password = "" }, "ADMIN_PASSWORD"},
		{"password and digest", func(c *Config) { c.Admin.PasswordSHA256 = auth.HashPassword("x") }, "ADMIN_PASSWORD_SHA256"},
		{"negative sync interval", func(c *Config) { c.Workbook.SyncInterval = -time.Second }, "WORKBOOK_SYNC_INTERVAL"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "SERVER_PORT"},
		{"zero upload limit", func(c *Config) { c.Server.MaxUploadBytes = 0 }, "MAX_UPLOAD_MB"},
		{"unknown backend", func(c *Config) { c.Workbook.Backend = "s3" }, "WORKBOOK_BACKEND"},
		{"empty path", func(c *Config) { c.Workbook.Path = "" }, "WORKBOOK_PATH"},
		{"postgres without host", func(c *Config) {
			c.Workbook.Backend = BackendPostgres
			c.Database.Host = ""
		}, "DB_HOST"},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *models.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}
