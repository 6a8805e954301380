package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/metrics"
	"github.com/alanyoungcy/greenbond-oracle/internal/notify"
	"github.com/alanyoungcy/greenbond-oracle/internal/oracle"
)

// PublishResult is returned by Publish. LedgerResult carries the ledger
// writer's transaction link or error message when a ledger is configured.
type PublishResult struct {
	BondID       string             `json:"bond_id"`
	Record       domain.AuditRecord `json:"record"`
	TxLink       string             `json:"tx_link"`
	LedgerResult string             `json:"ledger_result,omitempty"`
}

// OracleService runs audits through the engine and fans the outcome out to
// the journal, the signal bus, notifications and the report archive.
type OracleService struct {
	engine   *oracle.Engine
	bus      domain.SignalBus
	audit    domain.AuditStore
	blobs    domain.BlobWriter
	ledger   domain.LedgerWriter
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// OracleDeps holds the optional collaborators of an OracleService. Nil
// fields disable the corresponding side channel.
type OracleDeps struct {
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Blobs    domain.BlobWriter
	Ledger   domain.LedgerWriter
	Notifier Notifier
}

// NewOracleService creates an OracleService.
func NewOracleService(engine *oracle.Engine, deps OracleDeps, logger *slog.Logger) *OracleService {
	return &OracleService{
		engine:   engine,
		bus:      deps.Bus,
		audit:    deps.Audit,
		blobs:    deps.Blobs,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		now:      time.Now,
		logger:   logger,
	}
}

// Audit computes and stores the audit of bondID for date. actual overrides
// the recorded production when non-nil.
func (s *OracleService) Audit(ctx context.Context, bondID, date string, actual *float64) (domain.AuditRecord, error) {
	rec, bond, err := s.engine.RunDaily(ctx, bondID, date, actual)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("oracle_service: audit %s/%s: %w", bondID, date, err)
	}
	s.recordMetrics(bond, rec)
	s.broadcast(ctx, bondID, rec)
	s.journal(ctx, "audit_computed", map[string]any{
		"bond_id":           bondID,
		"date":              date,
		"performance_ratio": rec.PerformanceRatio,
		"verdict":           string(rec.Verdict),
		"rate_delta":        rec.RateDelta,
		"interest_rate":     bond.InterestRate,
		"manual_override":   actual != nil,
	})
	if rec.Verdict == domain.VerdictPenalty {
		s.notify(ctx, notify.Message{
			Event: notify.EventPenalty,
			Title: "Penalty: " + bondID,
			Body:  fmt.Sprintf("Performance ratio below threshold on %s", date),
			Fields: []notify.Field{
				{Name: "PR", Value: fmt.Sprintf("%.2f%%", rec.PerformanceRatio)},
				{Name: "Threshold", Value: fmt.Sprintf("%.2f%%", rec.ThresholdRequired)},
				{Name: "Interest rate", Value: fmt.Sprintf("%.4f%%", bond.InterestRate)},
			},
		})
	}
	return rec, nil
}

// Preview computes the audit of bondID for date without storing it.
func (s *OracleService) Preview(ctx context.Context, bondID, date string, actual *float64) (domain.AuditRecord, error) {
	rec, err := s.engine.Preview(ctx, bondID, date, actual)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("oracle_service: preview %s/%s: %w", bondID, date, err)
	}
	return rec, nil
}

// Publish attaches a publication token to the stored audit for date and, when
// a ledger is configured, records the audit on chain.
func (s *OracleService) Publish(ctx context.Context, bondID, date string) (PublishResult, error) {
	rec, err := s.engine.Publish(ctx, bondID, date)
	if err != nil {
		return PublishResult{}, fmt.Errorf("oracle_service: publish %s/%s: %w", bondID, date, err)
	}

	res := PublishResult{BondID: bondID, Record: rec, TxLink: rec.TxLink}
	outcome := "disabled"
	if s.ledger != nil && s.ledger.Enabled() {
		res.LedgerResult = s.ledger.RecordAudit(ctx, date, rec.Verdict, rec.PerformanceRatio)
		outcome = ledgerOutcome(res.LedgerResult)
	}
	metrics.Publications.WithLabelValues(outcome).Inc()

	s.journal(ctx, "audit_published", map[string]any{
		"bond_id":       bondID,
		"date":          date,
		"tx_link":       rec.TxLink,
		"ledger_result": res.LedgerResult,
	})
	s.notify(ctx, notify.Message{
		Event: notify.EventPublished,
		Title: "Audit published: " + bondID,
		Body:  date,
		Fields: []notify.Field{
			{Name: "Verdict", Value: string(rec.Verdict)},
			{Name: "Token", Value: rec.TxLink},
		},
	})
	return res, nil
}

// AuditLog returns the stored audit log of bondID.
func (s *OracleService) AuditLog(ctx context.Context, bondID string) ([]domain.AuditRecord, error) {
	b, err := s.engine.Bond(ctx, bondID)
	if err != nil {
		return nil, fmt.Errorf("oracle_service: audit log %s: %w", bondID, err)
	}
	return b.AuditLog, nil
}

// RunBatch audits the whole production history of bondID and archives the
// report.
func (s *OracleService) RunBatch(ctx context.Context, bondID string) (domain.BatchReport, error) {
	report, err := s.engine.RunBatch(ctx, bondID)
	if err != nil {
		return domain.BatchReport{}, fmt.Errorf("oracle_service: batch %s: %w", bondID, err)
	}

	penalties := 0
	for _, e := range report.AuditLog {
		metrics.AuditsTotal.WithLabelValues(string(e.Verdict)).Inc()
		metrics.PerformanceRatio.Observe(e.PerformanceRatio)
		if e.Verdict == domain.VerdictPenalty {
			penalties++
		}
	}
	metrics.InterestRate.WithLabelValues(bondID).Set(report.FinalRate)

	// Live subscribers get the final state once rather than every replayed day.
	if bond, err := s.engine.Bond(ctx, bondID); err == nil && len(bond.AuditLog) > 0 {
		s.broadcast(ctx, bondID, bond.AuditLog[len(bond.AuditLog)-1])
	}

	s.journal(ctx, "batch_completed", map[string]any{
		"bond_id":      bondID,
		"total_days":   report.TotalDays,
		"penalty_days": penalties,
		"average_pr":   report.AveragePR,
		"final_rate":   report.FinalRate,
	})
	s.archive(ctx, report)
	s.notify(ctx, notify.Message{
		Event: notify.EventBatch,
		Title: "Batch audit: " + bondID,
		Body:  report.Period,
		Fields: []notify.Field{
			{Name: "Average PR", Value: fmt.Sprintf("%.2f%%", report.AveragePR)},
			{Name: "Penalty days", Value: fmt.Sprintf("%d/%d", penalties, report.TotalDays)},
			{Name: "Final rate", Value: fmt.Sprintf("%.4f%%", report.FinalRate)},
		},
	})
	return report, nil
}

// PenaltySummary returns penalty statistics for bondID.
func (s *OracleService) PenaltySummary(ctx context.Context, bondID string) (domain.PenaltySummary, error) {
	sum, err := s.engine.PenaltySummary(ctx, bondID)
	if err != nil {
		return domain.PenaltySummary{}, fmt.Errorf("oracle_service: penalty summary %s: %w", bondID, err)
	}
	return sum, nil
}

// ContractInfo describes the configured ledger. ok is false when no ledger
// writer is wired.
func (s *OracleService) ContractInfo(ctx context.Context) (domain.ContractInfo, bool) {
	if s.ledger == nil {
		return domain.ContractInfo{}, false
	}
	return s.ledger.Info(ctx), true
}

// LiveFeed returns the most recent oracle updates retained on bondID.
func (s *OracleService) LiveFeed(ctx context.Context, bondID string) ([]domain.FeedEvent, error) {
	b, err := s.engine.Bond(ctx, bondID)
	if err != nil {
		return nil, fmt.Errorf("oracle_service: live feed %s: %w", bondID, err)
	}
	return b.LiveFeed, nil
}

// Subscribe streams the oracle updates of bondID until ctx is done.
func (s *OracleService) Subscribe(ctx context.Context, bondID string) (<-chan []byte, error) {
	if _, err := s.engine.Bond(ctx, bondID); err != nil {
		return nil, fmt.Errorf("oracle_service: subscribe %s: %w", bondID, err)
	}
	if s.bus == nil {
		return nil, fmt.Errorf("oracle_service: no signal bus: %w", domain.ErrValidation)
	}
	ch, err := s.bus.Subscribe(ctx, domain.BondChannel(bondID))
	if err != nil {
		return nil, fmt.Errorf("oracle_service: subscribe %s: %w", bondID, err)
	}
	return ch, nil
}

func (s *OracleService) recordMetrics(bond domain.Bond, rec domain.AuditRecord) {
	metrics.AuditsTotal.WithLabelValues(string(rec.Verdict)).Inc()
	metrics.PerformanceRatio.Observe(rec.PerformanceRatio)
	metrics.InterestRate.WithLabelValues(bond.ID).Set(bond.InterestRate)
	result := "ok"
	if rec.Fallback {
		result = "fallback"
	}
	metrics.IrradianceRequests.WithLabelValues(rec.IrradianceSource, result).Inc()
}

// broadcast publishes an ORACLE_UPDATE event for live subscribers and
// appends it to the durable update stream.
func (s *OracleService) broadcast(ctx context.Context, bondID string, rec domain.AuditRecord) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.FeedEvent{
		Type:      oracle.FeedTypeOracleUpdate,
		BondID:    bondID,
		Record:    rec,
		Timestamp: rec.AuditedAt,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "oracle_service: marshal update failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.BondChannel(bondID), payload); err != nil {
		s.logger.WarnContext(ctx, "oracle_service: publish update failed",
			slog.String("bond_id", bondID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.OracleUpdatesStream, payload); err != nil {
		s.logger.WarnContext(ctx, "oracle_service: stream append failed",
			slog.String("bond_id", bondID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OracleService) journal(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "oracle_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OracleService) notify(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "oracle_service: notify failed",
			slog.String("event", msg.Event),
			slog.String("error", err.Error()),
		)
	}
}

// archive uploads the batch report as JSON under reports/<bond>/.
func (s *OracleService) archive(ctx context.Context, report domain.BatchReport) {
	if s.blobs == nil {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.logger.WarnContext(ctx, "oracle_service: marshal report failed", slog.String("error", err.Error()))
		return
	}
	path := ReportPath(report.BondID, s.now())
	if err := s.blobs.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		s.logger.WarnContext(ctx, "oracle_service: archive report failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "oracle_service: report archived", slog.String("path", path))
}

// ReportPath is the object key of a batch report archived at t.
func ReportPath(bondID string, t time.Time) string {
	return fmt.Sprintf("reports/%s/batch-%s.json", bondID, t.UTC().Format("20060102T150405Z"))
}

func ledgerOutcome(result string) string {
	switch {
	case result == "":
		return "disabled"
	case strings.HasPrefix(result, "http"):
		return "sent"
	default:
		return "error"
	}
}
