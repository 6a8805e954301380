package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GBO_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults and
// environment are used instead. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GBO_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "GBO_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "GBO_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "GBO_SERVER_API_KEY")

	// ── Oracle ──
	setStr(&cfg.Oracle.Irradiance, "GBO_ORACLE_IRRADIANCE")
	setInt64(&cfg.Oracle.Seed, "GBO_ORACLE_SEED")
	setInt(&cfg.Oracle.HistoryDays, "GBO_ORACLE_HISTORY_DAYS")
	setStr(&cfg.Oracle.ExplorerURL, "GBO_ORACLE_EXPLORER_URL")

	// ── NASA ──
	setStr(&cfg.NASA.BaseURL, "GBO_NASA_BASE_URL")
	setDuration(&cfg.NASA.Timeout, "GBO_NASA_TIMEOUT")
	setFloat64(&cfg.NASA.DefaultGHI, "GBO_NASA_DEFAULT_GHI")
	setDuration(&cfg.NASA.CacheTTL, "GBO_NASA_CACHE_TTL")

	// ── Ledger ──
	setBool(&cfg.Ledger.Enabled, "GBO_LEDGER_ENABLED")
	setStr(&cfg.Ledger.RPCURL, "GBO_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.RPCURL, "RPC_URL") // compatibility alias
	setInt64(&cfg.Ledger.ChainID, "GBO_LEDGER_CHAIN_ID")
	setStr(&cfg.Ledger.ContractAddress, "GBO_LEDGER_CONTRACT_ADDRESS")
	setDuration(&cfg.Ledger.Timeout, "GBO_LEDGER_TIMEOUT")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "GBO_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "GBO_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "GBO_WALLET_KEY_PASSWORD")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "GBO_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "GBO_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "GBO_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "GBO_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "GBO_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "GBO_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "GBO_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "GBO_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "GBO_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "GBO_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "GBO_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "GBO_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "GBO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GBO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GBO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GBO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GBO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GBO_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "GBO_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "GBO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GBO_S3_REGION")
	setStr(&cfg.S3.Bucket, "GBO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GBO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GBO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GBO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GBO_S3_FORCE_PATH_STYLE")

	// ── Rate limit ──
	setBool(&cfg.RateLimit.Enabled, "GBO_RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Limit, "GBO_RATE_LIMIT_LIMIT")
	setDuration(&cfg.RateLimit.Window, "GBO_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GBO_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GBO_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GBO_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GBO_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "GBO_MODE")
	setStr(&cfg.LogLevel, "GBO_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
