// Package settlement turns insured losses into settled claims under the
// per-(policy, year) aggregate cap. The remaining-cap ledger initialises to
// the policy's sum insured on first access in each (policy, year) and only
// ever decreases, which enforces the aggregate-cap invariant by
// construction.
package settlement

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/marketsim/internal/domain"
	"github.com/aristath/marketsim/internal/money"
)

type capKey struct {
	policyID int64
	year     int
}

// Engine settles insured losses against insurer capital.
type Engine struct {
	remaining map[capKey]money.Cents
	log       zerolog.Logger
}

// New creates a settlement engine with an empty cap ledger.
func New(log zerolog.Logger) *Engine {
	return &Engine{
		remaining: make(map[capKey]money.Cents),
		log:       log.With().Str("component", "settlement").Logger(),
	}
}

// Settle applies one insured loss. It returns the capped claim amount; zero
// means no claim is settled. A loss outside the policy's coverage window or
// against the wrong insurer is an internal invariant breach, not a runtime
// condition, and comes back as an error for the driver to abort on.
func (e *Engine) Settle(day int, policy *domain.Policy, insurer *domain.Insurer, peril string, groundUpLoss money.Cents) (money.Cents, error) {
	if day < policy.BoundDay || day >= policy.ExpiryDay {
		return 0, fmt.Errorf("settlement invariant: loss on day %d outside policy %d window [%d, %d)",
			day, policy.ID, policy.BoundDay, policy.ExpiryDay)
	}
	if insurer.ID != policy.InsurerID {
		return 0, fmt.Errorf("settlement invariant: policy %d owned by insurer %d, settled against %d",
			policy.ID, policy.InsurerID, insurer.ID)
	}
	if groundUpLoss < 0 {
		return 0, fmt.Errorf("settlement invariant: negative ground-up loss %d for policy %d", groundUpLoss, policy.ID)
	}

	key := capKey{policyID: policy.ID, year: money.Year(day)}
	rem, ok := e.remaining[key]
	if !ok {
		rem = policy.Risk.SumInsured
	}

	effective := money.Min(groundUpLoss, rem)
	if effective <= 0 {
		e.remaining[key] = rem
		return 0, nil
	}

	e.remaining[key] = rem - effective
	insurer.DebitClaim(effective)

	e.log.Debug().
		Int("day", day).
		Int64("policy_id", policy.ID).
		Str("peril", peril).
		Int64("amount", int64(effective)).
		Int64("remaining_cap", int64(rem-effective)).
		Msg("claim settled")

	return effective, nil
}

// RemainingCap reports the remaining insurable amount for a (policy, year),
// falling back to the full sum insured before first access.
func (e *Engine) RemainingCap(policy *domain.Policy, year int) money.Cents {
	if rem, ok := e.remaining[capKey{policyID: policy.ID, year: year}]; ok {
		return rem
	}
	return policy.Risk.SumInsured
}
