// Package losses generates the simulator's two loss processes.
//
// Attritional losses are per-policy: the whole 360-day schedule is drawn in
// one pass at bind time from the policy's dedicated sub-stream, so the
// draws cannot interleave with any other domain. Catastrophes are
// market-wide: one Poisson occurrence process per (peril, region) pair,
// with a single shared damage fraction drawn per occurrence and applied to
// every matching in-force policy.
package losses

import (
	"github.com/aristath/marketsim/internal/config"
	"github.com/aristath/marketsim/internal/domain"
	"github.com/aristath/marketsim/internal/money"
	"github.com/aristath/marketsim/internal/simrand"
)

// Occurrence is one scheduled attritional loss for a policy.
type Occurrence struct {
	Day          int
	GroundUpLoss money.Cents
}

// AttritionalGenerator draws per-policy attritional loss schedules.
type AttritionalGenerator struct {
	cfg config.AttritionalConfig
	rng *simrand.Source
}

// NewAttritional creates the attritional generator.
func NewAttritional(cfg config.AttritionalConfig, rng *simrand.Source) *AttritionalGenerator {
	return &AttritionalGenerator{cfg: cfg, rng: rng}
}

// Schedule draws the full attritional schedule for a policy bound on
// boundDay. Occurrence times come from exponential inter-arrivals at the
// configured annual rate; draws past the coverage year are rejected. A draw
// that would land on the bound day itself is advanced to boundDay+1:
// attritional losses are strictly after bind, and the advance rule is fixed
// for the whole run so replays agree.
func (g *AttritionalGenerator) Schedule(policyID int64, boundDay int, sumInsured money.Cents) []Occurrence {
	if g.cfg.AnnualRate <= 0 {
		return nil
	}
	stream := g.rng.Streamf("attritional:%d", policyID)

	var out []Occurrence
	t := 0.0
	for {
		t += stream.Exponential(g.cfg.AnnualRate)
		if t >= 1 {
			break
		}
		day := boundDay + int(t*money.DaysPerYear)
		if day == boundDay {
			day = boundDay + 1
		}
		df := stream.LogNormal(g.cfg.Mu, g.cfg.Sigma)
		if df > 1 {
			df = 1
		}
		out = append(out, Occurrence{
			Day:          day,
			GroundUpLoss: money.Fraction(sumInsured, df),
		})
	}
	return out
}

// CatOccurrence is one scheduled market-wide catastrophe.
type CatOccurrence struct {
	Day    int
	Peril  string
	Region string
}

// CatGenerator schedules catastrophe occurrences and draws their shared
// damage fractions. All draws consume the single "cat" sub-stream: the
// occurrence pass happens once at start-up in configuration order, and
// severity draws follow in event order, so the sequence replays exactly.
type CatGenerator struct {
	perils   []config.PerilConfig
	severity map[string]config.SeverityConfig
	stream   *simrand.Stream
}

// NewCat creates the catastrophe generator.
func NewCat(perils []config.PerilConfig, rng *simrand.Source) *CatGenerator {
	severity := make(map[string]config.SeverityConfig, len(perils))
	for _, p := range perils {
		severity[p.Name] = p.Severity
	}
	return &CatGenerator{
		perils:   perils,
		severity: severity,
		stream:   rng.Stream("cat"),
	}
}

// ScheduleOccurrences draws every catastrophe arrival over the given number
// of years, one Poisson process per (peril, region).
func (g *CatGenerator) ScheduleOccurrences(totalYears int) []CatOccurrence {
	var out []CatOccurrence
	horizon := float64(totalYears)
	for _, p := range g.perils {
		if p.AnnualFrequency <= 0 {
			continue
		}
		for _, region := range p.Regions {
			t := 0.0
			for {
				t += g.stream.Exponential(p.AnnualFrequency)
				if t >= horizon {
					break
				}
				out = append(out, CatOccurrence{
					Day:    int(t * money.DaysPerYear),
					Peril:  p.Name,
					Region: region,
				})
			}
		}
	}
	return out
}

// DrawSeverity draws the occurrence's shared damage fraction, clipped to
// [0, 1]. Two occurrences on the same day draw independently.
func (g *CatGenerator) DrawSeverity(peril string) float64 {
	s, ok := g.severity[peril]
	if !ok || peril == domain.PerilAttritional {
		return 0
	}
	var df float64
	switch s.Dist {
	case config.DistPareto:
		df = g.stream.Pareto(s.Scale, s.Shape)
	default:
		df = g.stream.LogNormal(s.Mu, s.Sigma)
	}
	if df > 1 {
		df = 1
	}
	if df < 0 {
		df = 0
	}
	return df
}
