package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

func TestSunExposure(t *testing.T) {
	assert.Equal(t, 6.5, SunExposure(0))
	assert.InDelta(t, 3.0, SunExposure(90), 1e-9)
	assert.InDelta(t, 3.0, SunExposure(-120), 1e-9)
	assert.Greater(t, SunExposure(10), SunExposure(50))
	assert.Equal(t, SunExposure(35), SunExposure(-35))
}

func TestSyntheticIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a := NewSynthetic(7)
	b := NewSynthetic(7)
	c := NewSynthetic(8)

	ia := a.DailyIrradiance(ctx, 35, -115, "2024-03-01")
	ib := b.DailyIrradiance(ctx, 35, -115, "2024-03-01")
	ic := c.DailyIrradiance(ctx, 35, -115, "2024-03-01")

	assert.Equal(t, ia, ib)
	assert.NotEqual(t, ia.GHI, ic.GHI)
	assert.Equal(t, SourceSynthetic, ia.Source)
	assert.False(t, ia.Fallback)
}

func TestWeatherRange(t *testing.T) {
	s := NewSynthetic(1)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 365; i++ {
		w := s.Weather(12.5, 77.6, start.AddDate(0, 0, i).Format(domain.DateLayout))
		assert.GreaterOrEqual(t, w, 0.6)
		assert.LessOrEqual(t, w, 1.0)
	}
}

func TestGeneratorHistory(t *testing.T) {
	ctx := context.Background()
	irr := NewSynthetic(3)
	bond := domain.Bond{ID: "B1", CapacityKW: 100, Lat: 20, Lon: 30, Profile: domain.ProfileHighPerformance}
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	samples := NewGenerator(3, irr, 0.8).History(ctx, bond, end, 180)
	require.Len(t, samples, 180)
	assert.Equal(t, "2024-01-03", samples[0].Date)
	assert.Equal(t, "2024-06-30", samples[179].Date)

	for _, s := range samples {
		theoretical := irr.DailyIrradiance(ctx, bond.Lat, bond.Lon, s.Date).GHI * bond.CapacityKW * 0.8
		ratio := s.ActualEnergyKWh / theoretical
		assert.GreaterOrEqual(t, ratio, 0.85, s.Date)
		assert.LessOrEqual(t, ratio, 0.99, s.Date)
		assert.Equal(t, "B1", s.BondID)
	}

	again := NewGenerator(3, irr, 0.8).History(ctx, bond, end, 180)
	assert.Equal(t, samples, again, "same seed replays the same history")
}

func TestGeneratorDegradingTrendsDown(t *testing.T) {
	ctx := context.Background()
	irr := NewSynthetic(5)
	bond := domain.Bond{ID: "B2", CapacityKW: 100, Lat: 0, Profile: domain.ProfileDegrading}
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	samples := NewGenerator(5, irr, 0.8).History(ctx, bond, end, 100)
	ratio := func(s domain.ProductionSample) float64 {
		return s.ActualEnergyKWh / (irr.DailyIrradiance(ctx, 0, 0, s.Date).GHI * 100 * 0.8)
	}

	var early, late float64
	for i := 0; i < 10; i++ {
		early += ratio(samples[i])
		late += ratio(samples[len(samples)-1-i])
	}
	assert.Greater(t, early/10, 0.85)
	assert.Less(t, late/10, 0.62)
}
