package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/metrics"
	"github.com/alanyoungcy/greenbond-oracle/internal/notify"
)

// DefaultInterestRate is applied when a new bond does not state one.
const DefaultInterestRate = 5.5

// HistoryGenerator fabricates production history for a new bond.
type HistoryGenerator interface {
	History(ctx context.Context, bond domain.Bond, end time.Time, days int) []domain.ProductionSample
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// CreateBondInput is the client-supplied description of a new bond.
type CreateBondInput struct {
	ID               string   `json:"bond_id"`
	Name             string   `json:"name"`
	CapacityKW       float64  `json:"capacity_kw"`
	Threshold        float64  `json:"threshold"`
	BaseInterestRate *float64 `json:"base_interest_rate"`
	Lat              float64  `json:"lat"`
	Lon              float64  `json:"lon"`
	ContractAddress  string   `json:"contract_address"`
	Profile          string   `json:"profile"`
}

// Validate checks the input without touching any store.
func (in CreateBondInput) Validate() error {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if in.CapacityKW <= 0 {
		problems = append(problems, "capacity_kw must be positive")
	}
	if in.Threshold < 0 || in.Threshold > 100 {
		problems = append(problems, "threshold must be between 0 and 100")
	}
	if in.BaseInterestRate != nil && *in.BaseInterestRate < 0 {
		problems = append(problems, "base_interest_rate must not be negative")
	}
	if in.Lat < -90 || in.Lat > 90 {
		problems = append(problems, "lat must be between -90 and 90")
	}
	if in.Lon < -180 || in.Lon > 180 {
		problems = append(problems, "lon must be between -180 and 180")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), domain.ErrValidation)
	}
	return nil
}

// BondService registers bonds and their production history.
type BondService struct {
	bonds       domain.BondStore
	production  domain.ProductionStore
	generator   HistoryGenerator
	audit       domain.AuditStore
	notifier    Notifier
	historyDays int
	now         func() time.Time
	logger      *slog.Logger
}

// NewBondService creates a BondService. audit and notifier may be nil.
func NewBondService(
	bonds domain.BondStore,
	production domain.ProductionStore,
	generator HistoryGenerator,
	audit domain.AuditStore,
	notifier Notifier,
	historyDays int,
	logger *slog.Logger,
) *BondService {
	return &BondService{
		bonds:       bonds,
		production:  production,
		generator:   generator,
		audit:       audit,
		notifier:    notifier,
		historyDays: historyDays,
		now:         time.Now,
		logger:      logger,
	}
}

// Create registers a bond and generates its production history. The ID is
// generated when omitted; a taken ID fails with domain.ErrAlreadyExists.
func (s *BondService) Create(ctx context.Context, in CreateBondInput) (domain.Bond, error) {
	if err := in.Validate(); err != nil {
		return domain.Bond{}, fmt.Errorf("bond_service: %w", err)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = newBondID()
	}
	profile, err := domain.ParseProfile(in.Profile, id)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("bond_service: %w", err)
	}
	rate := DefaultInterestRate
	if in.BaseInterestRate != nil {
		rate = *in.BaseInterestRate
	}

	now := s.now().UTC()
	bond := domain.Bond{
		ID:                  id,
		Name:                strings.TrimSpace(in.Name),
		CapacityKW:          in.CapacityKW,
		Threshold:           in.Threshold,
		InterestRate:        rate,
		InitialInterestRate: rate,
		Lat:                 in.Lat,
		Lon:                 in.Lon,
		ContractAddress:     in.ContractAddress,
		Profile:             profile,
		AuditLog:            []domain.AuditRecord{},
		LiveFeed:            []domain.FeedEvent{},
		CreatedAt:           now,
	}
	if err := s.bonds.Create(ctx, bond); err != nil {
		return domain.Bond{}, fmt.Errorf("bond_service: create %q: %w", id, err)
	}

	samples := s.generator.History(ctx, bond, now, s.historyDays)
	if err := s.production.AppendSamples(ctx, samples); err != nil {
		return domain.Bond{}, fmt.Errorf("bond_service: production history for %q: %w", id, err)
	}
	metrics.InterestRate.WithLabelValues(id).Set(rate)

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "bond_created", map[string]any{
			"bond_id":     id,
			"name":        bond.Name,
			"capacity_kw": bond.CapacityKW,
			"threshold":   bond.Threshold,
			"profile":     string(profile),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "bond_service: audit log failed",
				slog.String("bond_id", id),
				slog.String("error", auditErr.Error()),
			)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.Message{
			Event: notify.EventBondCreated,
			Title: "Bond registered: " + id,
			Body:  bond.Name,
			Fields: []notify.Field{
				{Name: "Capacity", Value: fmt.Sprintf("%.1f kW", bond.CapacityKW)},
				{Name: "Threshold", Value: fmt.Sprintf("%.1f%%", bond.Threshold)},
			},
		}); err != nil {
			s.logger.WarnContext(ctx, "bond_service: notify failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "bond_service: bond created",
		slog.String("bond_id", id),
		slog.String("profile", string(profile)),
		slog.Int("history_days", len(samples)),
	)
	return bond, nil
}

// Get returns one bond.
func (s *BondService) Get(ctx context.Context, id string) (domain.Bond, error) {
	b, err := s.bonds.Get(ctx, id)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("bond_service: get %q: %w", id, err)
	}
	return b, nil
}

// List returns all bonds in creation order.
func (s *BondService) List(ctx context.Context) ([]domain.Bond, error) {
	bonds, err := s.bonds.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("bond_service: list: %w", err)
	}
	return bonds, nil
}

// Count returns the number of registered bonds.
func (s *BondService) Count(ctx context.Context) (int, error) {
	n, err := s.bonds.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bond_service: count: %w", err)
	}
	return n, nil
}

// Seed registers every input, skipping IDs that already exist.
func (s *BondService) Seed(ctx context.Context, inputs []CreateBondInput) error {
	for _, in := range inputs {
		if _, err := s.Create(ctx, in); err != nil {
			if in.ID != "" && errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return err
		}
	}
	return nil
}

func newBondID() string {
	return "BOND-" + strings.ToUpper(uuid.NewString()[:6])
}
