package losses

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketsim/internal/config"
	"github.com/aristath/marketsim/internal/money"
	"github.com/aristath/marketsim/internal/simrand"
)

func attrConfig(rate float64) config.AttritionalConfig {
	return config.AttritionalConfig{
		AnnualRate: rate,
		Mu:         math.Log(0.01),
		Sigma:      0.5,
	}
}

func TestAttritional_ZeroRateSchedulesNothing(t *testing.T) {
	g := NewAttritional(attrConfig(0), simrand.New(1))
	assert.Empty(t, g.Schedule(1, 10, 5_000_000_000))
}

func TestAttritional_OccurrencesStayInsideCoverageWindow(t *testing.T) {
	g := NewAttritional(attrConfig(50), simrand.New(3))

	for policyID := int64(1); policyID <= 20; policyID++ {
		boundDay := int(policyID) * 7
		occ := g.Schedule(policyID, boundDay, 5_000_000_000)
		require.NotEmpty(t, occ, "rate 50 should produce occurrences")
		for _, o := range occ {
			assert.Greater(t, o.Day, boundDay, "strictly after bind day")
			assert.Less(t, o.Day, boundDay+money.DaysPerYear)
		}
	}
}

func TestAttritional_GroundUpLossCappedBySumInsured(t *testing.T) {
	// A huge sigma produces damage fraction draws above 1, which must clip.
	g := NewAttritional(config.AttritionalConfig{AnnualRate: 30, Mu: 0, Sigma: 3}, simrand.New(5))

	si := money.Cents(1000)
	capped := false
	for policyID := int64(1); policyID <= 10; policyID++ {
		for _, o := range g.Schedule(policyID, 0, si) {
			require.LessOrEqual(t, int64(o.GroundUpLoss), int64(si))
			if o.GroundUpLoss == si {
				capped = true
			}
		}
	}
	assert.True(t, capped, "sigma 3 around exp(0)=1 should hit the clip")
}

func TestAttritional_Deterministic(t *testing.T) {
	draw := func() []Occurrence {
		return NewAttritional(attrConfig(4), simrand.New(11)).Schedule(42, 100, 5_000_000_000)
	}
	assert.Equal(t, draw(), draw())
}

func TestAttritional_PolicyStreamsIndependent(t *testing.T) {
	g := NewAttritional(attrConfig(10), simrand.New(11))
	a := g.Schedule(1, 100, 5_000_000_000)
	b := g.Schedule(2, 100, 5_000_000_000)
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.NotEqual(t, a, b, "different policies draw from different streams")
}

func catPerils() []config.PerilConfig {
	return []config.PerilConfig{
		{
			Name:            "WindstormAtlantic",
			AnnualFrequency: 1.0,
			Regions:         []string{"NorthAtlantic", "Gulf"},
			Severity:        config.SeverityConfig{Dist: config.DistLogNormal, Mu: math.Log(0.05), Sigma: 0.8},
		},
		{
			Name:            "EarthquakePacific",
			AnnualFrequency: 0.2,
			Regions:         []string{"Pacific"},
			Severity:        config.SeverityConfig{Dist: config.DistPareto, Scale: 0.02, Shape: 1.8},
		},
	}
}

func TestCat_ScheduleOccurrences(t *testing.T) {
	g := NewCat(catPerils(), simrand.New(1))
	occ := g.ScheduleOccurrences(10)

	require.NotEmpty(t, occ)
	regions := map[string]bool{}
	for _, o := range occ {
		assert.GreaterOrEqual(t, o.Day, 0)
		assert.Less(t, o.Day, 10*money.DaysPerYear)
		regions[o.Region] = true
		switch o.Region {
		case "NorthAtlantic", "Gulf":
			assert.Equal(t, "WindstormAtlantic", o.Peril)
		case "Pacific":
			assert.Equal(t, "EarthquakePacific", o.Peril)
		default:
			t.Fatalf("unexpected region %s", o.Region)
		}
	}
	assert.True(t, regions["NorthAtlantic"], "frequency 1/yr over 10 years should hit NorthAtlantic")
}

func TestCat_ZeroFrequencySchedulesNothing(t *testing.T) {
	perils := catPerils()
	perils[0].AnnualFrequency = 0
	perils[1].AnnualFrequency = 0
	g := NewCat(perils, simrand.New(1))
	assert.Empty(t, g.ScheduleOccurrences(10))
}

func TestCat_DrawSeverityBounds(t *testing.T) {
	g := NewCat(catPerils(), simrand.New(2))

	for i := 0; i < 500; i++ {
		df := g.DrawSeverity("WindstormAtlantic")
		require.GreaterOrEqual(t, df, 0.0)
		require.LessOrEqual(t, df, 1.0)

		dfP := g.DrawSeverity("EarthquakePacific")
		require.GreaterOrEqual(t, dfP, 0.02, "pareto draws start at the scale parameter")
		require.LessOrEqual(t, dfP, 1.0)
	}
}

func TestCat_DrawSeverityUnknownPeril(t *testing.T) {
	g := NewCat(catPerils(), simrand.New(2))
	assert.Equal(t, 0.0, g.DrawSeverity("Attritional"))
	assert.Equal(t, 0.0, g.DrawSeverity("FloodRhine"))
}

func TestCat_Deterministic(t *testing.T) {
	run := func() ([]CatOccurrence, []float64) {
		g := NewCat(catPerils(), simrand.New(17))
		occ := g.ScheduleOccurrences(5)
		draws := make([]float64, len(occ))
		for i, o := range occ {
			draws[i] = g.DrawSeverity(o.Peril)
		}
		return occ, draws
	}

	occA, drawsA := run()
	occB, drawsB := run()
	assert.Equal(t, occA, occB)
	assert.Equal(t, drawsA, drawsB)
}
