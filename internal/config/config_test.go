package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables; t.Setenv
// would race with any concurrent reader.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "classroom-dbinit", cfg.Telemetry.ServiceName)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "interactive_classroom", cfg.Database.Name)
	assert.Equal(t, 5, cfg.Bootstrap.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Bootstrap.RetryDelay)
	assert.Equal(t, "schema_migrations", cfg.Bootstrap.MigrationsTable)
	assert.Equal(t, TxPerMigration, cfg.Bootstrap.TxMode)
	assert.True(t, cfg.Bootstrap.AdoptAlembic)
	assert.False(t, cfg.Lease.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Lease.TTL)
	assert.Equal(t, 30*time.Second, cfg.Lease.RenewInterval)
	assert.Equal(t, "classroom.db.ready", cfg.Notify.Subject)
	assert.EqualValues(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.OpenTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DBINIT_SERVER_PORT", "9090")
	t.Setenv("DBINIT_DATABASE_HOST", "db.internal")
	t.Setenv("DBINIT_BOOTSTRAP_MAX_ATTEMPTS", "9")
	t.Setenv("DBINIT_BOOTSTRAP_RETRY_DELAY", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 9, cfg.Bootstrap.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Bootstrap.RetryDelay)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("DB_HOST", "legacy-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "legacy_db")
	t.Setenv("DB_ECHO", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "legacy-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "legacy_db", cfg.Database.Name)
	assert.True(t, cfg.Database.Echo)
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("DB_HOST", "legacy-host")
	t.Setenv("DBINIT_DATABASE_HOST", "prefixed-host")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed-host", cfg.Database.Host)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbinit.yaml")
	content := []byte(`
database:
  host: file-host
  name: file_db
bootstrap:
  tx_mode: single
  migrations_table: ledger
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-host", cfg.Database.Host)
	assert.Equal(t, "file_db", cfg.Database.Name)
	assert.Equal(t, TxSingle, cfg.Bootstrap.TxMode)
	assert.Equal(t, "ledger", cfg.Bootstrap.MigrationsTable)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidTxMode(t *testing.T) {
	t.Setenv("DBINIT_BOOTSTRAP_TX_MODE", "sometimes")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tx_mode")
}

func TestLoad_ZeroAttemptsRejected(t *testing.T) {
	t.Setenv("DBINIT_BOOTSTRAP_MAX_ATTEMPTS", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestLoad_LeaseTimings(t *testing.T) {
	tests := []struct {
		name    string
		ttl     string
		renew   string
		wantErr string
	}{
		{name: "defaults are valid", ttl: "", renew: ""},
		{name: "ttl above interval", ttl: "10s", renew: "3s"},
		{name: "ttl equal to interval", ttl: "30s", renew: "30s", wantErr: "lease.ttl"},
		{name: "ttl below interval", ttl: "10s", renew: "30s", wantErr: "lease.ttl"},
		{name: "zero interval", ttl: "10s", renew: "0s", wantErr: "lease.renew_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DBINIT_LEASE_ENABLED", "true")
			if tt.ttl != "" {
				t.Setenv("DBINIT_LEASE_TTL", tt.ttl)
			}
			if tt.renew != "" {
				t.Setenv("DBINIT_LEASE_RENEW_INTERVAL", tt.renew)
			}

			_, err := Load("")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_LeaseTimingsIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("DBINIT_LEASE_TTL", "1s")
	t.Setenv("DBINIT_LEASE_RENEW_INTERVAL", "1m")

	_, err := Load("")
	assert.NoError(t, err)
}

func TestLoad_BreakerSettings(t *testing.T) {
	t.Setenv("DBINIT_BREAKER_FAILURE_THRESHOLD", "1")
	t.Setenv("DBINIT_BREAKER_OPEN_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.EqualValues(t, 1, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.Breaker.OpenTimeout)

	t.Setenv("DBINIT_BREAKER_FAILURE_THRESHOLD", "0")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_threshold")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", d.DSN())
	assert.Equal(t, "n at db:5432", d.Endpoint())

	d.URL = "postgres://other/x"
	assert.Equal(t, "postgres://other/x", d.DSN())
	assert.NotContains(t, d.Endpoint(), "other")
}

func TestLoad_EnvIsolation(t *testing.T) {
	require.Empty(t, os.Getenv("DBINIT_SERVER_PORT"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
}
