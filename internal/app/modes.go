package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/greenbond-oracle/internal/server"
	"github.com/alanyoungcy/greenbond-oracle/internal/server/handler"
	"github.com/alanyoungcy/greenbond-oracle/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServerMode serves the REST API and the live feed until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.OracleService, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}
	if a.cfg.RateLimit.Enabled {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimit = a.cfg.RateLimit.Limit
		srvCfg.RateLimitWindow = a.cfg.RateLimit.Window.Duration
	}

	srv := server.NewServer(srvCfg, server.Handlers{
		Health:  handler.NewHealthHandler(deps.BondService, deps.Pingers, a.cfg.Mode, a.logger),
		Bonds:   handler.NewBondHandler(deps.BondService, deps.OracleService, a.logger),
		Oracle:  handler.NewOracleHandler(deps.OracleService, a.logger),
		Journal: handler.NewJournalHandler(deps.Journal, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// TimewarpMode replays the full production history of every bond, logs each
// batch summary and exits. Reports are archived when S3 is enabled.
func (a *App) TimewarpMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting timewarp mode")

	bonds, err := deps.BondService.List(ctx)
	if err != nil {
		return fmt.Errorf("timewarp: list bonds: %w", err)
	}

	for _, b := range bonds {
		if err := ctx.Err(); err != nil {
			return err
		}
		report, err := deps.OracleService.RunBatch(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("timewarp: %s: %w", b.ID, err)
		}
		summary, err := deps.OracleService.PenaltySummary(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("timewarp: %s: %w", b.ID, err)
		}
		a.logger.InfoContext(ctx, "batch audit complete",
			slog.String("bond_id", b.ID),
			slog.String("period", report.Period),
			slog.Float64("average_pr", report.AveragePR),
			slog.Int("penalty_days", summary.PenaltyDays),
			slog.Float64("initial_rate", b.InitialInterestRate),
			slog.Float64("final_rate", report.FinalRate),
			slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		)
	}

	a.logger.InfoContext(ctx, "timewarp finished", slog.Int("bonds", len(bonds)))
	return nil
}
