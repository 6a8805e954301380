package sensor

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

// Generator fabricates a bond's metered production history from a seedable
// random source and an irradiance source.
type Generator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	irradiance domain.IrradianceSource
	efficiency float64
}

// NewGenerator creates a Generator. systemEfficiency is the derate applied
// to irradiance before the profile efficiency.
func NewGenerator(seed int64, irradiance domain.IrradianceSource, systemEfficiency float64) *Generator {
	return &Generator{
		rng:        rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		irradiance: irradiance,
		efficiency: systemEfficiency,
	}
}

// History returns one sample per day for the days ending at end, oldest
// first.
func (g *Generator) History(ctx context.Context, bond domain.Bond, end time.Time, days int) []domain.ProductionSample {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.ProductionSample, 0, days)
	start := end.AddDate(0, 0, -(days - 1))
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(domain.DateLayout)
		irr := g.irradiance.DailyIrradiance(ctx, bond.Lat, bond.Lon, date)
		theoretical := irr.GHI * bond.CapacityKW * g.efficiency
		actual := theoretical * g.profileEfficiency(bond.Profile, i, days)
		out = append(out, domain.ProductionSample{
			BondID:          bond.ID,
			Date:            date,
			ActualEnergyKWh: math.Round(actual*100) / 100,
		})
	}
	return out
}

// profileEfficiency returns the fraction of theoretical output delivered on
// day i of n.
func (g *Generator) profileEfficiency(p domain.Profile, i, n int) float64 {
	switch p {
	case domain.ProfileHighPerformance:
		return g.uniform(0.86, 0.98)
	case domain.ProfileDegrading:
		progress := 0.0
		if n > 1 {
			progress = float64(i) / float64(n-1)
		}
		return math.Max(0, 0.92-0.37*progress+g.uniform(-0.04, 0.04))
	case domain.ProfileVolatile:
		return g.uniform(0.40, 1.05)
	default:
		return g.uniform(0.72, 0.95)
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rng.Float64()
}
