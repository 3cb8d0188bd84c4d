// Package events defines the simulator's append-only event stream.
//
// Each record serialises as one NDJSON line of the form
//
//	{"day": <int>, "event": {"<EventName>": {<payload>}}}
//
// The event name doubles as the discriminant of the tagged union, so
// downstream readers dispatch on the single key of the "event" object.
// Serialisation is fully deterministic: struct field order fixes the JSON
// field order, and all money fields are integer cents.
package events

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/aristath/marketsim/internal/money"
)

// Event type names as they appear on the wire.
const (
	NameSimulationStart    = "SimulationStart"
	NameCoverageRequested  = "CoverageRequested"
	NameLeadQuoteRequested = "LeadQuoteRequested"
	NameLeadQuoteIssued    = "LeadQuoteIssued"
	NameLeadQuoteDeclined  = "LeadQuoteDeclined"
	NameQuotePresented     = "QuotePresented"
	NameQuoteAccepted      = "QuoteAccepted"
	NameQuoteRejected      = "QuoteRejected"
	NamePolicyBound        = "PolicyBound"
	NamePolicyExpired      = "PolicyExpired"
	NameLossEvent          = "LossEvent"
	NameInsuredLoss        = "InsuredLoss"
	NameClaimSettled       = "ClaimSettled"
)

// Payload is implemented by every event payload type.
type Payload interface {
	// EventName returns the wire name used as the tagged-union key.
	EventName() string
}

// Record is one emitted event: the simulation day plus the tagged payload.
type Record struct {
	Day     int
	Payload Payload
}

// MarshalJSON writes the record in the canonical tagged form.
func (r Record) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(body) + 48)
	buf.WriteString(`{"day":`)
	buf.WriteString(strconv.Itoa(r.Day))
	buf.WriteString(`,"event":{"`)
	buf.WriteString(r.Payload.EventName())
	buf.WriteString(`":`)
	buf.Write(body)
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// RiskPayload is the risk object embedded in LeadQuoteRequested.
type RiskPayload struct {
	Territory     string      `json:"territory"`
	SumInsured    money.Cents `json:"sum_insured"`
	PerilsCovered []string    `json:"perils_covered"`
}

// SimulationStart opens every event log.
type SimulationStart struct {
	WarmupYears   int `json:"warmup_years"`
	AnalysisYears int `json:"analysis_years"`
}

func (SimulationStart) EventName() string { return NameSimulationStart }

// CoverageRequested marks an insured's annual coverage request reaching the
// broker.
type CoverageRequested struct {
	SubmissionID int64 `json:"submission_id"`
	InsuredID    int64 `json:"insured_id"`
}

func (CoverageRequested) EventName() string { return NameCoverageRequested }

// LeadQuoteRequested marks the broker soliciting a lead quote from the
// chosen insurer.
type LeadQuoteRequested struct {
	SubmissionID int64       `json:"submission_id"`
	InsurerID    int64       `json:"insurer_id"`
	InsuredID    int64       `json:"insured_id"`
	Risk         RiskPayload `json:"risk"`
}

func (LeadQuoteRequested) EventName() string { return NameLeadQuoteRequested }

// LeadQuoteIssued carries the insurer's technical premium and the cat
// exposure ledger reading at quote time.
type LeadQuoteIssued struct {
	SubmissionID       int64       `json:"submission_id"`
	InsurerID          int64       `json:"insurer_id"`
	ATP                money.Cents `json:"atp"`
	CatExposureAtQuote money.Cents `json:"cat_exposure_at_quote"`
}

func (LeadQuoteIssued) EventName() string { return NameLeadQuoteIssued }

// LeadQuoteDeclined marks an insurer refusing to quote.
type LeadQuoteDeclined struct {
	SubmissionID int64 `json:"submission_id"`
	InsurerID    int64 `json:"insurer_id"`
}

func (LeadQuoteDeclined) EventName() string { return NameLeadQuoteDeclined }

// QuotePresented marks the broker presenting an issued quote to the insured.
type QuotePresented struct {
	SubmissionID int64 `json:"submission_id"`
	InsurerID    int64 `json:"insurer_id"`
}

func (QuotePresented) EventName() string { return NameQuotePresented }

// QuoteAccepted carries the premium the insured agreed to.
type QuoteAccepted struct {
	SubmissionID int64       `json:"submission_id"`
	Premium      money.Cents `json:"premium"`
}

func (QuoteAccepted) EventName() string { return NameQuoteAccepted }

// QuoteRejected marks the insured declining a presented quote.
type QuoteRejected struct {
	SubmissionID int64 `json:"submission_id"`
	InsurerID    int64 `json:"insurer_id"`
}

func (QuoteRejected) EventName() string { return NameQuoteRejected }

// PolicyBound marks a one-year policy coming into force.
type PolicyBound struct {
	SubmissionID int64       `json:"submission_id"`
	PolicyID     int64       `json:"policy_id"`
	InsurerID    int64       `json:"insurer_id"`
	SumInsured   money.Cents `json:"sum_insured"`
}

func (PolicyBound) EventName() string { return NamePolicyBound }

// PolicyExpired marks the end of a policy's coverage window.
type PolicyExpired struct {
	PolicyID int64 `json:"policy_id"`
}

func (PolicyExpired) EventName() string { return NamePolicyExpired }

// LossEvent is one market-wide catastrophe occurrence. Severity is the
// occurrence's shared damage fraction.
type LossEvent struct {
	Peril    string  `json:"peril"`
	Region   string  `json:"region"`
	Severity float64 `json:"severity"`
}

func (LossEvent) EventName() string { return NameLossEvent }

// InsuredLoss is a ground-up loss landing on one in-force policy.
type InsuredLoss struct {
	PolicyID     int64       `json:"policy_id"`
	InsuredID    int64       `json:"insured_id"`
	Peril        string      `json:"peril"`
	GroundUpLoss money.Cents `json:"ground_up_loss"`
}

func (InsuredLoss) EventName() string { return NameInsuredLoss }

// ClaimSettled is the capped claim paid by the binding insurer.
type ClaimSettled struct {
	PolicyID  int64       `json:"policy_id"`
	InsurerID int64       `json:"insurer_id"`
	Peril     string      `json:"peril"`
	Amount    money.Cents `json:"amount"`
}

func (ClaimSettled) EventName() string { return NameClaimSettled }
