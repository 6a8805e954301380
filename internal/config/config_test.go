package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "synthetic", cfg.Oracle.Irradiance)
	assert.Equal(t, 180, cfg.Oracle.HistoryDays)
	assert.Equal(t, 5.0, cfg.NASA.DefaultGHI)
	assert.Equal(t, 10*time.Second, cfg.NASA.Timeout.Duration)
	assert.Equal(t, int64(11155111), cfg.Ledger.ChainID)
	assert.Len(t, cfg.Oracle.SeedBonds, 3)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "timewarp"
log_level = "debug"

[oracle]
irradiance = "nasa"
seed = 42

[[oracle.seed_bonds]]
id = "BOND_X"
name = "Test Farm"
capacity_kw = 50
threshold = 75
base_interest_rate = 5.5
lat = 10.0
lon = 20.0

[nasa]
timeout = "3s"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "timewarp", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nasa", cfg.Oracle.Irradiance)
	assert.Equal(t, int64(42), cfg.Oracle.Seed)
	require.Len(t, cfg.Oracle.SeedBonds, 1)
	assert.Equal(t, "BOND_X", cfg.Oracle.SeedBonds[0].ID)
	assert.Equal(t, 3*time.Second, cfg.NASA.Timeout.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "https://power.larc.nasa.gov/api/temporal/daily/point", cfg.NASA.BaseURL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GBO_SERVER_PORT", "9100")
	t.Setenv("GBO_ORACLE_IRRADIANCE", "nasa")
	t.Setenv("GBO_NASA_TIMEOUT", "2s")
	t.Setenv("GBO_LEDGER_ENABLED", "true")
	t.Setenv("PRIVATE_KEY", "abc123")
	t.Setenv("GBO_SERVER_CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("GBO_REDIS_POOL_SIZE", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "nasa", cfg.Oracle.Irradiance)
	assert.Equal(t, 2*time.Second, cfg.NASA.Timeout.Duration)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, "abc123", cfg.Wallet.PrivateKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 20, cfg.Redis.PoolSize, "unparseable values are ignored")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Server.Port = 0
	cfg.Oracle.Irradiance = "pvgis"
	cfg.Oracle.SeedBonds = append(cfg.Oracle.SeedBonds, SeedBond{ID: "BOND_01", CapacityKW: 0})
	cfg.Ledger.Enabled = true
	cfg.Ledger.RPCURL = ""
	cfg.Wallet.EncryptedKeyPath = "/keys/oracle.json"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "trade"`,
		"server: port must be 1-65535",
		`unknown irradiance source "pvgis"`,
		`duplicate id "BOND_01"`,
		"capacity_kw must be > 0",
		"ledger: rpc_url must not be empty",
		"wallet: key_password is required",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Supabase.Password = "hunter2"
	cfg.Notify.DiscordWebhookURL = "https://discord.test/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Equal(t, "", out.S3.SecretKey, "empty secrets stay empty")
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey, "original is untouched")

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "*", cfg.Server.CORSOrigins[0])
}
