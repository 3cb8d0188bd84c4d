// Package quoting holds the broker's lead-selection policy and the
// insured's acceptance policy. Both are pure functions of (insured, year,
// insurers, RNG): given the same seed and configuration, every submission
// is routed and answered identically across runs.
package quoting

import (
	"github.com/aristath/marketsim/internal/config"
	"github.com/aristath/marketsim/internal/money"
	"github.com/aristath/marketsim/internal/simrand"
)

// LeadSelector picks the single insurer the broker asks for a lead quote.
type LeadSelector interface {
	SelectLead(insuredID int64, year int, insurerCount int) int64
}

// RoundRobin rotates every insured across the insurer panel one slot per
// year, so the book spreads evenly without any draws.
type RoundRobin struct{}

// SelectLead implements LeadSelector.
func (RoundRobin) SelectLead(insuredID int64, year int, insurerCount int) int64 {
	return (insuredID + int64(year)) % int64(insurerCount)
}

// Weighted draws the lead according to configured market shares.
type Weighted struct {
	cumulative []float64
	stream     *simrand.Stream
}

// NewWeighted builds a weighted selector. Empty shares mean equal shares.
func NewWeighted(shares []float64, insurerCount int, stream *simrand.Stream) *Weighted {
	if len(shares) == 0 {
		shares = make([]float64, insurerCount)
		for i := range shares {
			shares[i] = 1
		}
	}
	var total float64
	for _, s := range shares {
		total += s
	}
	cum := make([]float64, len(shares))
	var running float64
	for i, s := range shares {
		running += s / total
		cum[i] = running
	}
	return &Weighted{cumulative: cum, stream: stream}
}

// SelectLead implements LeadSelector.
func (w *Weighted) SelectLead(_ int64, _ int, insurerCount int) int64 {
	u := w.stream.UniformUnit()
	for i, c := range w.cumulative {
		if u < c {
			return int64(i)
		}
	}
	return int64(insurerCount - 1)
}

// NewSelector builds the configured lead selector.
func NewSelector(cfg *config.Config, rng *simrand.Source) LeadSelector {
	if cfg.BrokerPolicy == config.BrokerWeighted {
		return NewWeighted(cfg.BrokerShares, cfg.Insurers.Count, rng.Stream("broker"))
	}
	return RoundRobin{}
}

// AcceptancePolicy decides whether the insured takes a presented quote.
type AcceptancePolicy interface {
	Accepts(submissionID int64, premium money.Cents) bool
}

// AlwaysAccept takes every presented lead quote.
type AlwaysAccept struct{}

// Accepts implements AcceptancePolicy.
func (AlwaysAccept) Accepts(int64, money.Cents) bool { return true }

// Probabilistic accepts each quote independently with fixed probability.
type Probabilistic struct {
	p      float64
	stream *simrand.Stream
}

// NewProbabilistic builds an acceptance policy with the given probability.
func NewProbabilistic(p float64, stream *simrand.Stream) *Probabilistic {
	return &Probabilistic{p: p, stream: stream}
}

// Accepts implements AcceptancePolicy.
func (a *Probabilistic) Accepts(int64, money.Cents) bool {
	return a.stream.UniformUnit() < a.p
}

// NewAcceptance builds the configured acceptance policy.
func NewAcceptance(cfg *config.Config, rng *simrand.Source) AcceptancePolicy {
	if cfg.AcceptProbability >= 1 {
		return AlwaysAccept{}
	}
	return NewProbabilistic(cfg.AcceptProbability, rng.Stream("acceptance"))
}
