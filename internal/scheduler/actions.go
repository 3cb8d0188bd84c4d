package scheduler

import "github.com/aristath/marketsim/internal/money"

// Action is a scheduled unit of work. The concrete types below form a
// closed sum: every handler dispatches with a type switch and an unknown
// action is an internal defect.
type Action interface {
	action()
}

// PresentSubmission delivers an insured's annual coverage request to the
// broker.
type PresentSubmission struct {
	InsuredID int64
	Year      int
}

// PresentQuote presents an issued lead quote to the insured, one day after
// issue.
type PresentQuote struct {
	SubmissionID int64
}

// BindPolicy binds an accepted submission, one day after acceptance.
type BindPolicy struct {
	SubmissionID int64
}

// ExpirePolicy ends a policy's coverage window at bound_day + 360.
type ExpirePolicy struct {
	PolicyID int64
}

// FireAttritional lands one pre-drawn attritional occurrence on a policy.
// Nonce distinguishes occurrences of the same policy for diagnostics.
type FireAttritional struct {
	PolicyID     int64
	Nonce        int
	GroundUpLoss money.Cents
}

// FireCat fires one market-wide catastrophe occurrence.
type FireCat struct {
	Peril  string
	Region string
}

// YearBoundary marks the start of a simulation year and triggers the
// scheduling of that year's submissions.
type YearBoundary struct {
	Year int
}

// EndSimulation terminates the event loop.
type EndSimulation struct{}

func (PresentSubmission) action() {}
func (PresentQuote) action()      {}
func (BindPolicy) action()        {}
func (ExpirePolicy) action()      {}
func (FireAttritional) action()   {}
func (FireCat) action()           {}
func (YearBoundary) action()      {}
func (EndSimulation) action()     {}
