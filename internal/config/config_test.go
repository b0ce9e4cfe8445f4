package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FraudDefaults(t *testing.T) {
	os.Unsetenv("FRAUD_HIGH_AMOUNT_CENTS")
	os.Unsetenv("FRAUD_WINDOW_MIN")
	path := writeConfig(t, "server:\n  port: 8080\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultFraudHighAmountCents), cfg.Fraud.HighAmountCents)
	assert.Equal(t, DefaultFraudWindowMinutes, cfg.Fraud.WindowMinutes)
}

func TestLoad_FraudFromFile(t *testing.T) {
	os.Unsetenv("FRAUD_HIGH_AMOUNT_CENTS")
	os.Unsetenv("FRAUD_WINDOW_MIN")
	path := writeConfig(t, "fraud:\n  high_amount_cents: 5000\n  window_min: 30\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), cfg.Fraud.HighAmountCents)
	assert.Equal(t, 30, cfg.Fraud.WindowMinutes)
}

func TestLoad_FraudEnvOverrides(t *testing.T) {
	t.Setenv("FRAUD_HIGH_AMOUNT_CENTS", "2500")
	t.Setenv("FRAUD_WINDOW_MIN", "5")
	path := writeConfig(t, "fraud:\n  high_amount_cents: 5000\n  window_min: 30\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), cfg.Fraud.HighAmountCents)
	assert.Equal(t, 5, cfg.Fraud.WindowMinutes)
}

func TestLoad_FraudEnvGarbageIgnored(t *testing.T) {
	t.Setenv("FRAUD_HIGH_AMOUNT_CENTS", "not-a-number")
	t.Setenv("FRAUD_WINDOW_MIN", "-3")
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultFraudHighAmountCents), cfg.Fraud.HighAmountCents)
	assert.Equal(t, DefaultFraudWindowMinutes, cfg.Fraud.WindowMinutes)
}

func TestLoad_PostgresPasswordAppended(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "hunter2")
	path := writeConfig(t, "postgres:\n  dsn: \"host=localhost dbname=ledger\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "host=localhost dbname=ledger password=hunter2", cfg.Postgres.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
