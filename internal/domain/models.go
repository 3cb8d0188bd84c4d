// Package domain holds the pure data model of the simulated market:
// insureds, risks, submissions, quotes, policies and insurers. The package
// has no infrastructure dependencies; all state mutation happens through
// the market driver's action handlers.
package domain

import "github.com/aristath/marketsim/internal/money"

// PerilAttritional is the per-policy background peril. Every other peril
// name is a catastrophe peril shared across exposures.
const PerilAttritional = "Attritional"

// IsCatPeril reports whether a peril name denotes a catastrophe peril.
func IsCatPeril(peril string) bool {
	return peril != PerilAttritional
}

// Risk is the structured submission payload. It is derived from the insured
// and resent each year unchanged.
type Risk struct {
	InsuredID     int64
	Territory     string
	SumInsured    money.Cents
	PerilsCovered []string
}

// Covers reports whether the risk's coverage includes the given peril.
func (r Risk) Covers(peril string) bool {
	for _, p := range r.PerilsCovered {
		if p == peril {
			return true
		}
	}
	return false
}

// CoversAnyCat reports whether the risk carries any catastrophe exposure.
func (r Risk) CoversAnyCat() bool {
	for _, p := range r.PerilsCovered {
		if IsCatPeril(p) {
			return true
		}
	}
	return false
}

// Insured is one population slot: a single insurable asset in one
// territory, held for the entire run. Insureds are created at day zero and
// never destroyed.
type Insured struct {
	ID         int64
	Territory  string
	SumInsured money.Cents
	Perils     []string
}

// Risk builds the insured's annual submission payload.
func (i *Insured) Risk() Risk {
	return Risk{
		InsuredID:     i.ID,
		Territory:     i.Territory,
		SumInsured:    i.SumInsured,
		PerilsCovered: i.Perils,
	}
}

// SubmissionState tracks a submission through the quoting state machine.
type SubmissionState int

const (
	SubmissionRequested SubmissionState = iota
	SubmissionIssued
	SubmissionDeclined
	SubmissionPresented
	SubmissionAccepted
	SubmissionRejected
	SubmissionBound
)

// String implements fmt.Stringer for logs and diagnostics.
func (s SubmissionState) String() string {
	switch s {
	case SubmissionRequested:
		return "requested"
	case SubmissionIssued:
		return "issued"
	case SubmissionDeclined:
		return "declined"
	case SubmissionPresented:
		return "presented"
	case SubmissionAccepted:
		return "accepted"
	case SubmissionRejected:
		return "rejected"
	case SubmissionBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Submission is one (insured, year) coverage request. It is born when the
// broker requests a lead quote and dies when bound or rejected.
type Submission struct {
	ID        int64
	InsuredID int64
	Year      int
	Risk      Risk
	InsurerID int64
	State     SubmissionState
	Quote     *Quote
}

// Quote is an insurer's response to a lead request.
type Quote struct {
	SubmissionID       int64
	InsurerID          int64
	Premium            money.Cents
	ATP                money.Cents
	CatExposureAtQuote money.Cents
}

// Policy is a bound annual contract owned by exactly one insurer.
type Policy struct {
	ID           int64
	InsurerID    int64
	InsuredID    int64
	SubmissionID int64
	Risk         Risk
	BoundDay     int
	ExpiryDay    int
}

// InForce reports whether the policy provides cover on the given day.
func (p *Policy) InForce(day int) bool {
	return p.BoundDay <= day && day < p.ExpiryDay
}

// Insurer is a market participant with capital and a catastrophe exposure
// ledger. Capital may go negative; insolvency is not a terminal state.
type Insurer struct {
	ID          int64
	Capital     money.Cents
	CatExposure money.Cents
}

// CreditPremium books premium income into capital.
func (i *Insurer) CreditPremium(premium money.Cents) {
	i.Capital += premium
}

// DebitClaim pays a settled claim out of capital.
func (i *Insurer) DebitClaim(amount money.Cents) {
	i.Capital -= amount
}

// AddCatExposure records newly bound cat-exposed sum insured.
func (i *Insurer) AddCatExposure(sumInsured money.Cents) {
	i.CatExposure += sumInsured
}

// ReleaseCatExposure removes expired cat-exposed sum insured.
func (i *Insurer) ReleaseCatExposure(sumInsured money.Cents) {
	i.CatExposure -= sumInsured
	if i.CatExposure < 0 {
		i.CatExposure = 0
	}
}
