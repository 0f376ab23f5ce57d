package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/gatehouse/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse_test")
	t.Setenv("GATEHOUSE_AUDIT_S3_BUCKET", "audit-bucket")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.Redis.SessionTTL)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 90*24*time.Hour, cfg.Audit.RetainFor)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "*/10 * * * *", cfg.Sweeper.OrphanSchedule)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse_test")
	t.Setenv("GATEHOUSE_PORT", "8888")
	t.Setenv("GATEHOUSE_SESSION_TTL", "2h")
	t.Setenv("GATEHOUSE_AUDIT_ENABLED", "false")
	t.Setenv("GATEHOUSE_LOG_LEVEL", "debug")
	t.Setenv("GATEHOUSE_POSTGRES_MAX_CONNS", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Redis.SessionTTL)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaults()
		cfg.Database.URL = "postgres://localhost/gatehouse_test"
		cfg.Audit.S3Bucket = "audit-bucket"
		return cfg
	}

	t.Run("ValidBaseline", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("MissingPostgresURL", func(t *testing.T) {
		cfg := base()
		cfg.Database.URL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("PortsMustDiffer", func(t *testing.T) {
		cfg := base()
		cfg.Server.HealthPort = cfg.Server.Port
		assert.Error(t, cfg.Validate())
	})

	t.Run("ArchivalNeedsBucket", func(t *testing.T) {
		cfg := base()
		cfg.Audit.S3Bucket = ""
		assert.Error(t, cfg.Validate())

		cfg.Audit.ArchiveOnPrune = false
		assert.NoError(t, cfg.Validate())
	})

	t.Run("AuthNeedsIssuerAndClient", func(t *testing.T) {
		cfg := base()
		cfg.Auth.Enabled = true
		assert.Error(t, cfg.Validate())

		cfg.Auth.IssuerURL = "https://id.example.com"
		assert.Error(t, cfg.Validate())

		cfg.Auth.ClientID = "gatehouse"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("OTelNeedsEndpoint", func(t *testing.T) {
		cfg := base()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, observability.InfoLevel, ParseLogLevel("info"))
	assert.Equal(t, observability.WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(t, observability.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, observability.ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, ParseLogLevel("verbose"))
}
