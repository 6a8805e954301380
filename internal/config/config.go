// Package config defines the top-level configuration for the green bond
// oracle and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GBO_* environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Oracle    OracleConfig    `toml:"oracle"`
	NASA      NASAConfig      `toml:"nasa"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Wallet    WalletConfig    `toml:"wallet"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required on every mutating request.
	APIKey string `toml:"api_key"`
}

// OracleConfig controls the audit engine and its data sources.
type OracleConfig struct {
	// Irradiance selects the irradiance strategy: "synthetic" or "nasa".
	Irradiance string `toml:"irradiance"`
	// Seed drives the synthetic production and weather generators. Zero means
	// seed from the clock.
	Seed        int64      `toml:"seed"`
	HistoryDays int        `toml:"history_days"`
	ExplorerURL string     `toml:"explorer_url"`
	SeedBonds   []SeedBond `toml:"seed_bonds"`
}

// SeedBond describes a bond registered at startup.
type SeedBond struct {
	ID               string  `toml:"id"`
	Name             string  `toml:"name"`
	CapacityKW       float64 `toml:"capacity_kw"`
	Threshold        float64 `toml:"threshold"`
	BaseInterestRate float64 `toml:"base_interest_rate"`
	Lat              float64 `toml:"lat"`
	Lon              float64 `toml:"lon"`
	ContractAddress  string  `toml:"contract_address"`
	Profile          string  `toml:"profile"`
}

// NASAConfig holds the NASA POWER client parameters.
type NASAConfig struct {
	BaseURL    string   `toml:"base_url"`
	Timeout    duration `toml:"timeout"`
	DefaultGHI float64  `toml:"default_ghi"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// LedgerConfig holds the audit contract parameters used when publishing to
// chain.
type LedgerConfig struct {
	Enabled         bool     `toml:"enabled"`
	RPCURL          string   `toml:"rpc_url"`
	ChainID         int64    `toml:"chain_id"`
	ContractAddress string   `toml:"contract_address"`
	GasLimit        uint64   `toml:"gas_limit"`
	Timeout         duration `toml:"timeout"`
}

// WalletConfig holds the credentials of the account that signs ledger
// transactions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters for the
// audit journal.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for the report
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	Enabled bool     `toml:"enabled"`
	Limit   int      `toml:"limit"`
	Window  duration `toml:"window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Oracle: OracleConfig{
			Irradiance:  "synthetic",
			HistoryDays: 180,
			ExplorerURL: "https://sepolia.etherscan.io",
			SeedBonds: []SeedBond{
				{ID: "BOND_01", Name: "Mojave Solar Farm A", CapacityKW: 5000, Threshold: 75, BaseInterestRate: 5.5, Lat: 35.01, Lon: -115.47},
				{ID: "BOND_02", Name: "Rajasthan Solar Park", CapacityKW: 2500, Threshold: 75, BaseInterestRate: 5.5, Lat: 26.91, Lon: 70.90},
				{ID: "BOND_03", Name: "Atacama PV Array", CapacityKW: 1200, Threshold: 80, BaseInterestRate: 6.0, Lat: -23.86, Lon: -69.14},
			},
		},
		NASA: NASAConfig{
			BaseURL:    "https://power.larc.nasa.gov/api/temporal/daily/point",
			Timeout:    duration{10 * time.Second},
			DefaultGHI: 5.0,
			CacheTTL:   duration{6 * time.Hour},
		},
		Ledger: LedgerConfig{
			Enabled:         false,
			RPCURL:          "https://rpc.sepolia.org",
			ChainID:         11155111,
			ContractAddress: "0x78EFD50b1607A9b0A350849202111E6ac7255D50",
			GasLimit:        100000,
			Timeout:         duration{15 * time.Second},
		},
		Supabase: SupabaseConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "greenbond-reports",
			ForcePathStyle: true,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   120,
			Window:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"penalty", "published"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"timewarp": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validIrradiance = map[string]bool{
	"synthetic": true,
	"nasa":      true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, timewarp)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Oracle
	if !validIrradiance[strings.ToLower(c.Oracle.Irradiance)] {
		errs = append(errs, fmt.Sprintf("oracle: unknown irradiance source %q (valid: synthetic, nasa)", c.Oracle.Irradiance))
	}
	if c.Oracle.HistoryDays < 1 {
		errs = append(errs, "oracle: history_days must be >= 1")
	}
	seen := make(map[string]bool, len(c.Oracle.SeedBonds))
	for i, b := range c.Oracle.SeedBonds {
		if b.ID == "" {
			errs = append(errs, fmt.Sprintf("oracle: seed_bonds[%d]: id must not be empty", i))
		} else if seen[b.ID] {
			errs = append(errs, fmt.Sprintf("oracle: seed_bonds[%d]: duplicate id %q", i, b.ID))
		}
		seen[b.ID] = true
		if b.CapacityKW <= 0 {
			errs = append(errs, fmt.Sprintf("oracle: seed_bonds[%d]: capacity_kw must be > 0", i))
		}
	}

	// NASA
	if strings.ToLower(c.Oracle.Irradiance) == "nasa" {
		if c.NASA.BaseURL == "" {
			errs = append(errs, "nasa: base_url must not be empty")
		}
		if c.NASA.Timeout.Duration <= 0 {
			errs = append(errs, "nasa: timeout must be > 0")
		}
	}
	if c.NASA.DefaultGHI < 0 {
		errs = append(errs, "nasa: default_ghi must be >= 0")
	}

	// Ledger and wallet
	if c.Ledger.Enabled {
		if c.Ledger.RPCURL == "" {
			errs = append(errs, "ledger: rpc_url must not be empty when enabled")
		}
		if c.Ledger.ChainID <= 0 {
			errs = append(errs, "ledger: chain_id must be positive")
		}
		if c.Ledger.ContractAddress == "" {
			errs = append(errs, "ledger: contract_address must not be empty when enabled")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Limit < 1 {
			errs = append(errs, "rate_limit: limit must be >= 1")
		}
		if c.RateLimit.Window.Duration <= 0 {
			errs = append(errs, "rate_limit: window must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
