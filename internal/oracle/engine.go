// Package oracle implements the audit engine: it turns production and
// irradiance data into performance ratios, compliance verdicts and interest
// rate adjustments, and keeps each bond's audit log.
package oracle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/ledger"
)

// maxLiveFeed bounds the raw feed buffer kept on each bond.
const maxLiveFeed = 20

// FeedTypeOracleUpdate tags feed events emitted after an audit.
const FeedTypeOracleUpdate = "ORACLE_UPDATE"

// Engine runs audits against a bond store.
type Engine struct {
	bonds       domain.BondStore
	production  domain.ProductionStore
	irradiance  domain.IrradianceSource
	explorerURL string
	entropy     io.Reader
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithExplorerURL sets the block explorer used for publication links.
func WithExplorerURL(u string) Option {
	return func(e *Engine) { e.explorerURL = u }
}

// WithEntropy sets the randomness source for publication tokens.
func WithEntropy(r io.Reader) Option {
	return func(e *Engine) { e.entropy = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(
	bonds domain.BondStore,
	production domain.ProductionStore,
	irradiance domain.IrradianceSource,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		bonds:       bonds,
		production:  production,
		irradiance:  irradiance,
		explorerURL: "https://sepolia.etherscan.io",
		now:         time.Now,
		logger:      logger.With(slog.String("component", "oracle")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunDaily audits bondID for date and stores the result. When actual is nil
// the production sample for date is used. An existing record for the same
// date is replaced, and the rate change it applied is reversed before the new
// one takes effect.
func (e *Engine) RunDaily(ctx context.Context, bondID, date string, actual *float64) (domain.AuditRecord, domain.Bond, error) {
	rec, err := e.evaluate(ctx, bondID, date, actual)
	if err != nil {
		return domain.AuditRecord{}, domain.Bond{}, err
	}

	bond, err := e.bonds.Update(ctx, bondID, func(b *domain.Bond) error {
		if i := b.FindAudit(date); i >= 0 {
			prev := b.AuditLog[i]
			b.InterestRate = roundFloat(b.InterestRate-prev.RateDelta, 4)
			b.AuditLog = append(b.AuditLog[:i], b.AuditLog[i+1:]...)
		}

		// The verdict is taken against the threshold in force when the record
		// is committed.
		rec.ThresholdRequired = b.Threshold
		rec.Verdict = Judge(rec.PerformanceRatio, b.Threshold)
		next := AdjustRate(b.InterestRate, rec.Verdict)
		rec.RateDelta = roundFloat(next-b.InterestRate, 4)
		rec.InterestRateAfter = next
		b.InterestRate = next

		b.AuditLog = append(b.AuditLog, rec)
		b.LiveFeed = append(b.LiveFeed, domain.FeedEvent{
			Type:      FeedTypeOracleUpdate,
			BondID:    b.ID,
			Record:    rec,
			Timestamp: rec.AuditedAt,
		})
		if n := len(b.LiveFeed); n > maxLiveFeed {
			b.LiveFeed = append([]domain.FeedEvent(nil), b.LiveFeed[n-maxLiveFeed:]...)
		}
		return nil
	})
	if err != nil {
		return domain.AuditRecord{}, domain.Bond{}, fmt.Errorf("oracle: store audit: %w", err)
	}

	e.logger.DebugContext(ctx, "audit stored",
		slog.String("bond_id", bondID),
		slog.String("date", date),
		slog.Float64("performance_ratio", rec.PerformanceRatio),
		slog.String("verdict", string(rec.Verdict)),
		slog.Float64("interest_rate", bond.InterestRate),
	)
	return rec, bond, nil
}

// Preview computes the audit for bondID on date without storing it or
// touching the interest rate.
func (e *Engine) Preview(ctx context.Context, bondID, date string, actual *float64) (domain.AuditRecord, error) {
	rec, err := e.evaluate(ctx, bondID, date, actual)
	if err != nil {
		return domain.AuditRecord{}, err
	}
	bond, err := e.bonds.Get(ctx, bondID)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("oracle: %w", err)
	}
	rec.InterestRateAfter = AdjustRate(bond.InterestRate, rec.Verdict)
	rec.RateDelta = roundFloat(rec.InterestRateAfter-bond.InterestRate, 4)
	return rec, nil
}

// evaluate gathers inputs and computes ratio and verdict for one date.
func (e *Engine) evaluate(ctx context.Context, bondID, date string, actual *float64) (domain.AuditRecord, error) {
	bond, err := e.bonds.Get(ctx, bondID)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("oracle: %w", err)
	}

	var energy float64
	if actual != nil {
		if _, err := domain.ParseDate(date); err != nil {
			return domain.AuditRecord{}, fmt.Errorf("oracle: %w", err)
		}
		if *actual < 0 {
			return domain.AuditRecord{}, fmt.Errorf("oracle: actual energy must not be negative: %w", domain.ErrValidation)
		}
		energy = *actual
	} else {
		// Samples only exist for valid dates, so a malformed date is simply
		// missing data.
		sample, err := e.production.Sample(ctx, bondID, date)
		if err != nil {
			return domain.AuditRecord{}, fmt.Errorf("oracle: no production data for %s: %w", date, err)
		}
		energy = sample.ActualEnergyKWh
	}

	irr := e.irradiance.DailyIrradiance(ctx, bond.Lat, bond.Lon, date)
	theoretical, pr := Evaluate(energy, irr.GHI, bond.CapacityKW)

	return domain.AuditRecord{
		Date:              date,
		ActualEnergyKWh:   energy,
		TheoreticalMaxKWh: theoretical,
		GHI:               irr.GHI,
		IrradianceSource:  irr.Source,
		Fallback:          irr.Fallback,
		PerformanceRatio:  pr,
		ThresholdRequired: bond.Threshold,
		Verdict:           Judge(pr, bond.Threshold),
		AuditedAt:         e.now().UTC(),
	}, nil
}

// Publish attaches a fresh publication token to the audit record of bondID
// for date. Publishing again replaces the token.
func (e *Engine) Publish(ctx context.Context, bondID, date string) (domain.AuditRecord, error) {
	hash, err := ledger.NewTxHash(e.entropy)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("oracle: %w", err)
	}
	link := ledger.TxLink(e.explorerURL, hash)
	now := e.now().UTC()

	var rec domain.AuditRecord
	_, err = e.bonds.Update(ctx, bondID, func(b *domain.Bond) error {
		i := b.FindAudit(date)
		if i < 0 {
			return fmt.Errorf("no audit data for %s: %w", date, domain.ErrValidation)
		}
		b.AuditLog[i].TxLink = link
		b.AuditLog[i].PublishedAt = &now
		rec = b.AuditLog[i]
		return nil
	})
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("oracle: publish: %w", err)
	}

	e.logger.InfoContext(ctx, "audit published",
		slog.String("bond_id", bondID),
		slog.String("date", date),
		slog.String("tx_link", link),
	)
	return rec, nil
}

// RunBatch audits every date in the bond's production history in order.
func (e *Engine) RunBatch(ctx context.Context, bondID string) (domain.BatchReport, error) {
	if _, err := e.bonds.Get(ctx, bondID); err != nil {
		return domain.BatchReport{}, fmt.Errorf("oracle: %w", err)
	}
	samples, err := e.production.Samples(ctx, bondID)
	if err != nil {
		return domain.BatchReport{}, fmt.Errorf("oracle: load production: %w", err)
	}

	report := domain.BatchReport{
		BondID:    bondID,
		Period:    periodLabel(len(samples)),
		TotalDays: len(samples),
		AuditLog:  make([]domain.BatchEntry, 0, len(samples)),
		StartedAt: e.now().UTC(),
	}
	ratios := make([]float64, 0, len(samples))
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return domain.BatchReport{}, fmt.Errorf("oracle: batch interrupted: %w", err)
		}
		energy := s.ActualEnergyKWh
		rec, bond, err := e.RunDaily(ctx, bondID, s.Date, &energy)
		if err != nil {
			return domain.BatchReport{}, err
		}
		report.AuditLog = append(report.AuditLog, domain.BatchEntry{
			Date:             rec.Date,
			PerformanceRatio: rec.PerformanceRatio,
			Verdict:          rec.Verdict,
		})
		ratios = append(ratios, rec.PerformanceRatio)
		report.FinalRate = bond.InterestRate
	}
	report.AveragePR = Average(ratios)
	report.FinishedAt = e.now().UTC()

	e.logger.InfoContext(ctx, "batch audit complete",
		slog.String("bond_id", bondID),
		slog.Int("total_days", report.TotalDays),
		slog.Float64("average_pr", report.AveragePR),
	)
	return report, nil
}

// Bond returns a copy of the stored bond.
func (e *Engine) Bond(ctx context.Context, bondID string) (domain.Bond, error) {
	b, err := e.bonds.Get(ctx, bondID)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("oracle: %w", err)
	}
	return b, nil
}

// PenaltySummary summarizes the stored audit log of bondID.
func (e *Engine) PenaltySummary(ctx context.Context, bondID string) (domain.PenaltySummary, error) {
	bond, err := e.bonds.Get(ctx, bondID)
	if err != nil {
		return domain.PenaltySummary{}, fmt.Errorf("oracle: %w", err)
	}
	return Summarize(bond), nil
}

// Summarize computes penalty statistics over bond's audit log.
func Summarize(bond domain.Bond) domain.PenaltySummary {
	sum := domain.PenaltySummary{
		BondID:              bond.ID,
		TotalDays:           len(bond.AuditLog),
		CurrentInterestRate: bond.InterestRate,
		InitialInterestRate: bond.InitialInterestRate,
		PenaltyDates:        []string{},
	}
	ratios := make([]float64, 0, len(bond.AuditLog))
	for _, r := range bond.AuditLog {
		ratios = append(ratios, r.PerformanceRatio)
		if r.Verdict == domain.VerdictPenalty {
			sum.PenaltyDays++
			sum.PenaltyDates = append(sum.PenaltyDates, r.Date)
		} else {
			sum.CompliantDays++
		}
	}
	sum.AveragePR = Average(ratios)
	if sum.TotalDays > 0 {
		sum.PenaltyRatio = roundFloat(float64(sum.PenaltyDays)/float64(sum.TotalDays)*100, 2)
	}
	return sum
}

func periodLabel(days int) string {
	switch {
	case days > 0 && days%30 == 0:
		months := days / 30
		if months == 1 {
			return "1 Month"
		}
		return fmt.Sprintf("%d Months", months)
	case days == 1:
		return "1 Day"
	default:
		return fmt.Sprintf("%d Days", days)
	}
}
