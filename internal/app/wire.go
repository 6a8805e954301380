package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/greenbond-oracle/internal/blob/s3"
	cachemem "github.com/alanyoungcy/greenbond-oracle/internal/cache/memory"
	"github.com/alanyoungcy/greenbond-oracle/internal/cache/redis"
	"github.com/alanyoungcy/greenbond-oracle/internal/config"
	"github.com/alanyoungcy/greenbond-oracle/internal/crypto"
	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/ledger"
	"github.com/alanyoungcy/greenbond-oracle/internal/notify"
	"github.com/alanyoungcy/greenbond-oracle/internal/oracle"
	"github.com/alanyoungcy/greenbond-oracle/internal/platform/nasa"
	"github.com/alanyoungcy/greenbond-oracle/internal/sensor"
	"github.com/alanyoungcy/greenbond-oracle/internal/server/handler"
	"github.com/alanyoungcy/greenbond-oracle/internal/service"
	"github.com/alanyoungcy/greenbond-oracle/internal/store/memory"
	"github.com/alanyoungcy/greenbond-oracle/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Bonds   *memory.Store
	Journal domain.AuditStore

	// Caches
	Bus         domain.SignalBus
	RateLimiter domain.RateLimiter

	// Blob storage; nil when S3 is disabled.
	Blobs domain.BlobWriter

	Ledger   *ledger.EthereumWriter
	Notifier *notify.Notifier

	BondService   *service.BondService
	OracleService *service.OracleService

	// Pingers are reported by the health endpoint.
	Pingers map[string]handler.Pinger
}

// pingFunc adapts a health function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Bonds:   memory.New(),
		Pingers: make(map[string]handler.Pinger),
	}

	// --- Journal: PostgreSQL when enabled, in-memory otherwise ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Journal = postgres.NewAuditStore(pgClient.Pool())
		deps.Pingers["postgres"] = pgClient
	} else {
		deps.Journal = memory.NewJournal(0)
	}

	// --- Redis: feed bus and rate limiter ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		streamMaxLen := int64(10000)
		if cfg.Redis.StreamMaxLen > 0 {
			streamMaxLen = int64(cfg.Redis.StreamMaxLen)
		}
		deps.Bus = redis.NewSignalBus(redisClient, streamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient
	} else {
		deps.Bus = cachemem.NewBus(cfg.Redis.StreamMaxLen)
		deps.RateLimiter = cachemem.NewRateLimiter()
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blobs = s3blob.NewWriter(s3Client)
		deps.Pingers["s3"] = pingFunc(s3Client.Health)
	}

	// --- Ledger ---
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil && !errors.Is(err, crypto.ErrNoKey) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}
	deps.Ledger, err = ledger.NewEthereumWriter(ledger.Config{
		Enabled:         cfg.Ledger.Enabled,
		RPCURL:          cfg.Ledger.RPCURL,
		ChainID:         cfg.Ledger.ChainID,
		ContractAddress: cfg.Ledger.ContractAddress,
		GasLimit:        cfg.Ledger.GasLimit,
		ExplorerURL:     cfg.Oracle.ExplorerURL,
		Timeout:         cfg.Ledger.Timeout.Duration,
	}, key, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	if cfg.Ledger.Enabled && key == nil {
		logger.WarnContext(ctx, "ledger enabled without a wallet key; publications will not reach chain")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Oracle ---
	seed := cfg.Oracle.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	synthetic := sensor.NewSynthetic(seed)
	var irradiance domain.IrradianceSource = synthetic
	if strings.EqualFold(cfg.Oracle.Irradiance, "nasa") {
		irradiance = nasa.NewClient(nasa.Config{
			BaseURL:    cfg.NASA.BaseURL,
			Timeout:    cfg.NASA.Timeout.Duration,
			DefaultGHI: cfg.NASA.DefaultGHI,
			CacheTTL:   cfg.NASA.CacheTTL.Duration,
		}, logger)
	}

	// History generation walks every past day of every bond, so it always
	// runs on the synthetic weather model.
	generator := sensor.NewGenerator(seed, synthetic, oracle.SystemEfficiency)
	engine := oracle.NewEngine(deps.Bonds, deps.Bonds, irradiance, logger,
		oracle.WithExplorerURL(cfg.Oracle.ExplorerURL),
	)

	oracleDeps := service.OracleDeps{
		Bus:      deps.Bus,
		Audit:    deps.Journal,
		Blobs:    deps.Blobs,
		Ledger:   deps.Ledger,
		Notifier: deps.Notifier,
	}
	deps.OracleService = service.NewOracleService(engine, oracleDeps, logger)
	deps.BondService = service.NewBondService(
		deps.Bonds, deps.Bonds, generator, deps.Journal, deps.Notifier,
		cfg.Oracle.HistoryDays, logger,
	)

	if err := deps.BondService.Seed(ctx, seedInputs(cfg.Oracle.SeedBonds)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed bonds: %w", err)
	}

	return deps, cleanup, nil
}

// seedInputs converts configured seed bonds to creation requests.
func seedInputs(seeds []config.SeedBond) []service.CreateBondInput {
	inputs := make([]service.CreateBondInput, 0, len(seeds))
	for _, s := range seeds {
		rate := s.BaseInterestRate
		in := service.CreateBondInput{
			ID:              s.ID,
			Name:            s.Name,
			CapacityKW:      s.CapacityKW,
			Threshold:       s.Threshold,
			Lat:             s.Lat,
			Lon:             s.Lon,
			ContractAddress: s.ContractAddress,
			Profile:         s.Profile,
		}
		if rate > 0 {
			in.BaseInterestRate = &rate
		}
		inputs = append(inputs, in)
	}
	return inputs
}
