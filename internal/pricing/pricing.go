// Package pricing implements the insurers' quoting logic: the
// actuarially-required technical premium (ATP) built from attritional and
// catastrophe expected loss, the expense load, and the underwriting margin.
// The cat expected-loss term is scaled by a concentration multiplier read
// off the insurer's exposure ledger, and an appetite ceiling turns quotes
// into declines once written cat exposure would outgrow capital.
package pricing

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/marketsim/internal/config"
	"github.com/aristath/marketsim/internal/domain"
	"github.com/aristath/marketsim/internal/money"
	"github.com/aristath/marketsim/internal/simrand"
)

// Engine prices lead quote requests for every insurer. Each insurer owns a
// dedicated pricing sub-stream so margin noise replays independently of the
// order in which other domains draw.
type Engine struct {
	params  config.InsurerConfig
	attr    config.AttritionalConfig
	perils  []config.PerilConfig
	streams []*simrand.Stream
	log     zerolog.Logger
}

// New creates the pricing engine.
func New(cfg *config.Config, rng *simrand.Source, log zerolog.Logger) *Engine {
	streams := make([]*simrand.Stream, cfg.Insurers.Count)
	for i := range streams {
		streams[i] = rng.Streamf("pricing:%d", i)
	}
	return &Engine{
		params:  cfg.Insurers,
		attr:    cfg.Attritional,
		perils:  cfg.CatPerils,
		streams: streams,
		log:     log.With().Str("component", "pricing").Logger(),
	}
}

// Quote prices a risk for the given insurer. The boolean is false when the
// insurer declines (appetite ceiling breached); the returned quote is then
// zero.
func (e *Engine) Quote(ins *domain.Insurer, risk domain.Risk, submissionID int64) (domain.Quote, bool) {
	catShare := e.catExposedShare(risk)

	if e.declines(ins, risk, catShare) {
		e.log.Debug().
			Int64("insurer_id", ins.ID).
			Int64("submission_id", submissionID).
			Int64("cat_exposure", int64(ins.CatExposure)).
			Msg("quote declined on appetite")
		return domain.Quote{}, false
	}

	attrEL := e.attritionalEL(risk.SumInsured)
	catEL := e.catEL(ins, risk)

	atp := money.Cents(math.Floor(float64(attrEL+catEL) * (1 + e.params.ExpenseLoad)))
	premium := e.applyMargin(ins, atp)

	return domain.Quote{
		SubmissionID:       submissionID,
		InsurerID:          ins.ID,
		Premium:            premium,
		ATP:                atp,
		CatExposureAtQuote: ins.CatExposure,
	}, true
}

// declines applies the appetite ceiling: writing this risk must not push
// cat exposure past the configured multiple of current capital.
func (e *Engine) declines(ins *domain.Insurer, risk domain.Risk, catShare bool) bool {
	if e.params.AppetiteMultiple <= 0 || !catShare {
		return false
	}
	ceiling := e.params.AppetiteMultiple * float64(ins.Capital)
	return float64(ins.CatExposure+risk.SumInsured) > ceiling
}

// catExposedShare reports whether binding the risk would add to the cat
// exposure ledger: it must cover a configured cat peril in its territory.
func (e *Engine) catExposedShare(risk domain.Risk) bool {
	for _, p := range e.perils {
		if risk.Covers(p.Name) && containsRegion(p.Regions, risk.Territory) {
			return true
		}
	}
	return false
}

// attritionalEL is S × annual_frequency × E[min(df, 1)].
func (e *Engine) attritionalEL(sumInsured money.Cents) money.Cents {
	if e.attr.AnnualRate <= 0 {
		return 0
	}
	meanDf := ClippedLogNormalMean(e.attr.Mu, e.attr.Sigma)
	return money.Fraction(sumInsured, e.attr.AnnualRate*meanDf)
}

// catEL sums S × peril_frequency × E[min(df, 1)] over the perils the risk
// is exposed to, scaled by the concentration multiplier.
func (e *Engine) catEL(ins *domain.Insurer, risk domain.Risk) money.Cents {
	var expected float64
	for _, p := range e.perils {
		if p.AnnualFrequency <= 0 {
			continue
		}
		if !risk.Covers(p.Name) || !containsRegion(p.Regions, risk.Territory) {
			continue
		}
		expected += p.AnnualFrequency * SeverityMean(p.Severity)
	}
	if expected == 0 {
		return 0
	}
	return money.Fraction(risk.SumInsured, expected*e.concentrationMultiplier(ins))
}

// concentrationMultiplier loads the cat term as the ledger fills relative
// to capital.
func (e *Engine) concentrationMultiplier(ins *domain.Insurer) float64 {
	if e.params.ConcentrationLoad <= 0 || ins.Capital <= 0 || ins.CatExposure <= 0 {
		return 1
	}
	return 1 + e.params.ConcentrationLoad*float64(ins.CatExposure)/float64(ins.Capital)
}

// applyMargin converts ATP to the quoted premium: margin basis points plus
// per-quote jitter from the insurer's pricing stream, rounded half up.
func (e *Engine) applyMargin(ins *domain.Insurer, atp money.Cents) money.Cents {
	margin := e.params.MarginBps
	if e.params.MarginJitterBps > 0 {
		jitter := e.streams[ins.ID].UniformUnit()
		margin += int64(jitter * float64(e.params.MarginJitterBps+1))
	}
	return money.Cents((int64(atp)*(10_000+margin) + 5_000) / 10_000)
}

// SeverityMean returns E[min(df, 1)] for a configured severity
// distribution.
func SeverityMean(s config.SeverityConfig) float64 {
	switch s.Dist {
	case config.DistPareto:
		return ClippedParetoMean(s.Scale, s.Shape)
	default:
		return ClippedLogNormalMean(s.Mu, s.Sigma)
	}
}

// ClippedLogNormalMean returns E[min(X, 1)] for X ~ LogNormal(mu, sigma).
func ClippedLogNormalMean(mu, sigma float64) float64 {
	if sigma == 0 {
		return math.Min(math.Exp(mu), 1)
	}
	// E[X · 1{X≤1}] + P(X > 1)
	below := math.Exp(mu+sigma*sigma/2) * distuv.UnitNormal.CDF((-mu-sigma*sigma)/sigma)
	above := 1 - distuv.UnitNormal.CDF(-mu/sigma)
	return below + above
}

// ClippedParetoMean returns E[min(X, 1)] for X ~ Pareto(scale, shape) with
// scale ≤ 1.
func ClippedParetoMean(scale, shape float64) float64 {
	if scale >= 1 {
		return 1
	}
	tail := math.Pow(scale, shape) // P(X > 1)
	if shape == 1 {
		return scale*(-math.Log(scale)) + tail
	}
	body := shape * math.Pow(scale, shape) * (1 - math.Pow(scale, 1-shape)) / (1 - shape)
	return body + tail
}

func containsRegion(regions []string, territory string) bool {
	for _, r := range regions {
		if r == territory {
			return true
		}
	}
	return false
}
