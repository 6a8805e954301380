package oracle

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

const (
	// SystemEfficiency is the fraction of incident irradiance a healthy
	// installation converts into delivered energy.
	SystemEfficiency = 0.8

	PenaltyRateStep   = 0.2
	CompliantRateStep = 0.05
	MinInterestRate   = 0.1
)

var (
	penaltyStep   = decimal.NewFromFloat(PenaltyRateStep)
	compliantStep = decimal.NewFromFloat(CompliantRateStep)
	minRate       = decimal.NewFromFloat(MinInterestRate)
)

// TheoreticalMax is the energy in kWh an installation of capacityKW should
// deliver under ghi kWh/m²/day, rounded to four decimals for display.
func TheoreticalMax(ghi, capacityKW float64) float64 {
	return round(theoreticalMax(ghi, capacityKW), 4)
}

// PerformanceRatio returns actual/theoretical as a percentage rounded to two
// decimals, or 0 when theoretical is 0.
func PerformanceRatio(actual, theoretical float64) float64 {
	return round(ratio(decimal.NewFromFloat(actual), decimal.NewFromFloat(theoretical)), 2)
}

// Evaluate returns the displayed theoretical maximum and the performance
// ratio of actual kWh. The ratio is taken against the unrounded maximum.
func Evaluate(actual, ghi, capacityKW float64) (theoreticalKWh, pr float64) {
	theo := theoreticalMax(ghi, capacityKW)
	return round(theo, 4), round(ratio(decimal.NewFromFloat(actual), theo), 2)
}

func theoreticalMax(ghi, capacityKW float64) decimal.Decimal {
	return decimal.NewFromFloat(ghi).
		Mul(decimal.NewFromFloat(capacityKW)).
		Mul(decimal.NewFromFloat(SystemEfficiency))
}

func ratio(actual, theoretical decimal.Decimal) decimal.Decimal {
	if theoretical.IsZero() {
		return decimal.Zero
	}
	return actual.Mul(decimal.NewFromInt(100)).DivRound(theoretical, 16)
}

// Judge returns COMPLIANT iff ratio meets the threshold.
func Judge(ratio, threshold float64) domain.Verdict {
	if ratio >= threshold {
		return domain.VerdictCompliant
	}
	return domain.VerdictPenalty
}

// AdjustRate applies the interest-rate step for verdict. Penalties raise the
// rate; compliance lowers it down to MinInterestRate.
func AdjustRate(rate float64, verdict domain.Verdict) float64 {
	r := decimal.NewFromFloat(rate)
	switch verdict {
	case domain.VerdictPenalty:
		r = r.Add(penaltyStep)
	case domain.VerdictCompliant:
		r = decimal.Max(minRate, r.Sub(compliantStep))
	}
	return round(r, 4)
}

// Average returns the mean of ratios rounded to two decimals, 0 when empty.
func Average(ratios []float64) float64 {
	if len(ratios) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, r := range ratios {
		sum = sum.Add(decimal.NewFromFloat(r))
	}
	return round(sum.Div(decimal.NewFromInt(int64(len(ratios)))), 2)
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}

func roundFloat(v float64, places int32) float64 {
	return round(decimal.NewFromFloat(v), places)
}
