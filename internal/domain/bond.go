package domain

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the behaviour pattern of a bond's simulated production.
type Profile string

const (
	ProfileNormal          Profile = "NORMAL"
	ProfileHighPerformance Profile = "HIGH_PERFORMANCE"
	ProfileDegrading       Profile = "DEGRADING"
	ProfileVolatile        Profile = "VOLATILE"
)

// knownProfiles assigns profiles to the reference bonds when the caller does
// not choose one.
var knownProfiles = map[string]Profile{
	"BOND_01": ProfileHighPerformance,
	"BOND_02": ProfileDegrading,
	"BOND_03": ProfileVolatile,
}

// ParseProfile resolves a profile name, falling back to the profile
// registered for bondID and then NORMAL.
func ParseProfile(name, bondID string) (Profile, error) {
	switch p := Profile(strings.ToUpper(strings.TrimSpace(name))); p {
	case ProfileNormal, ProfileHighPerformance, ProfileDegrading, ProfileVolatile:
		return p, nil
	case "":
		if p, ok := knownProfiles[bondID]; ok {
			return p, nil
		}
		return ProfileNormal, nil
	default:
		return "", fmt.Errorf("unknown profile %q: %w", name, ErrValidation)
	}
}

// Verdict is the compliance outcome of an audit.
type Verdict string

const (
	VerdictCompliant Verdict = "COMPLIANT"
	VerdictPenalty   Verdict = "PENALTY"
)

// Bond is a green-financing instrument tied to a solar installation.
type Bond struct {
	ID                  string        `json:"bond_id"`
	Name                string        `json:"name"`
	CapacityKW          float64       `json:"capacity_kw"`
	Threshold           float64       `json:"threshold"`
	InterestRate        float64       `json:"base_interest_rate"`
	InitialInterestRate float64       `json:"initial_interest_rate"`
	Lat                 float64       `json:"lat"`
	Lon                 float64       `json:"lon"`
	ContractAddress     string        `json:"contract_address"`
	Profile             Profile       `json:"profile"`
	AuditLog            []AuditRecord `json:"audit_log"`
	LiveFeed            []FeedEvent   `json:"live_feed"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Clone returns a deep copy of b so callers can read it outside a lock.
func (b Bond) Clone() Bond {
	out := b
	out.AuditLog = append([]AuditRecord{}, b.AuditLog...)
	out.LiveFeed = append([]FeedEvent{}, b.LiveFeed...)
	return out
}

// FindAudit returns the index of the audit record for date, or -1.
func (b *Bond) FindAudit(date string) int {
	for i := range b.AuditLog {
		if b.AuditLog[i].Date == date {
			return i
		}
	}
	return -1
}

// AuditRecord is the outcome of auditing one bond for one date.
type AuditRecord struct {
	Date              string     `json:"date"`
	ActualEnergyKWh   float64    `json:"actual_energy_kwh"`
	TheoreticalMaxKWh float64    `json:"theoretical_max_kwh"`
	GHI               float64    `json:"ghi"`
	IrradianceSource  string     `json:"irradiance_source"`
	Fallback          bool       `json:"irradiance_fallback"`
	PerformanceRatio  float64    `json:"performance_ratio"`
	ThresholdRequired float64    `json:"threshold_required"`
	Verdict           Verdict    `json:"verdict"`
	RateDelta         float64    `json:"rate_delta"`
	InterestRateAfter float64    `json:"interest_rate_after"`
	TxLink            string     `json:"tx_link,omitempty"`
	AuditedAt         time.Time  `json:"audited_at"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
}

// FeedEvent is a raw oracle update retained on the bond.
type FeedEvent struct {
	Type      string      `json:"type"`
	BondID    string      `json:"bond_id"`
	Record    AuditRecord `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ProductionSample is the energy a bond's installation produced on one date.
type ProductionSample struct {
	BondID          string  `json:"bond_id"`
	Date            string  `json:"date"`
	ActualEnergyKWh float64 `json:"actual_energy_kwh"`
}

// BatchEntry is one line of a batch audit.
type BatchEntry struct {
	Date             string  `json:"date"`
	PerformanceRatio float64 `json:"performance_ratio"`
	Verdict          Verdict `json:"verdict"`
}

// BatchReport aggregates a batch audit over a bond's production history.
type BatchReport struct {
	BondID     string       `json:"bond_id"`
	Period     string       `json:"period"`
	TotalDays  int          `json:"total_days"`
	AveragePR  float64      `json:"average_pr"`
	AuditLog   []BatchEntry `json:"audit_log"`
	FinalRate  float64      `json:"final_interest_rate"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// PenaltySummary describes the penalty history in a bond's audit log.
type PenaltySummary struct {
	BondID              string   `json:"bond_id"`
	TotalDays           int      `json:"total_days"`
	PenaltyDays         int      `json:"penalty_days"`
	CompliantDays       int      `json:"compliant_days"`
	PenaltyRatio        float64  `json:"penalty_ratio"`
	AveragePR           float64  `json:"average_pr"`
	CurrentInterestRate float64  `json:"current_interest_rate"`
	InitialInterestRate float64  `json:"initial_interest_rate"`
	PenaltyDates        []string `json:"penalty_dates"`
}

// DateLayout is the calendar date format used throughout the oracle.
const DateLayout = "2006-01-02"

// ParseDate validates a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, ErrValidation)
	}
	return t, nil
}
