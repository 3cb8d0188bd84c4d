// Package market wires the simulator together and drives the event loop.
//
// The driver owns all mutable state (insurers, policies, submissions, the
// in-force index) and mutates it only from the action handler currently
// executing. Combined with the scheduler's (day, insertion) ordering and
// the tagged RNG sub-streams, this makes two runs with the same seed and
// configuration emit byte-identical event logs.
package market

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/aristath/marketsim/internal/config"
	"github.com/aristath/marketsim/internal/domain"
	"github.com/aristath/marketsim/internal/events"
	"github.com/aristath/marketsim/internal/losses"
	"github.com/aristath/marketsim/internal/money"
	"github.com/aristath/marketsim/internal/pricing"
	"github.com/aristath/marketsim/internal/quoting"
	"github.com/aristath/marketsim/internal/scheduler"
	"github.com/aristath/marketsim/internal/settlement"
	"github.com/aristath/marketsim/internal/simrand"
)

// exposureKey indexes in-force policies by (territory, peril) so a cat
// occurrence touches only matching exposures, without any back-pointers
// from insurers to policies.
type exposureKey struct {
	territory string
	peril     string
}

// Market is the top-level simulation driver for a single seed.
type Market struct {
	cfg *config.Config
	log zerolog.Logger

	rng        *simrand.Source
	sched      *scheduler.Scheduler
	events     *events.Log
	pricing    *pricing.Engine
	settle     *settlement.Engine
	attr       *losses.AttritionalGenerator
	cat        *losses.CatGenerator
	selector   quoting.LeadSelector
	acceptance quoting.AcceptancePolicy

	insureds    []*domain.Insured
	insurers    []*domain.Insurer
	submissions map[int64]*domain.Submission
	policies    map[int64]*domain.Policy
	inforce     map[exposureKey][]int64

	nextSubmissionID int64
	nextPolicyID     int64
	horizon          int
}

// New builds a market for one run. Events stream to out as NDJSON; a nil
// writer keeps them in memory only.
func New(cfg *config.Config, seed uint64, log zerolog.Logger, out io.Writer) *Market {
	rng := simrand.New(seed)

	m := &Market{
		cfg:         cfg,
		log:         log.With().Str("component", "market").Uint64("seed", seed).Logger(),
		rng:         rng,
		sched:       scheduler.New(),
		events:      events.NewLog(out),
		pricing:     pricing.New(cfg, rng, log),
		settle:      settlement.New(log),
		attr:        losses.NewAttritional(cfg.Attritional, rng),
		cat:         losses.NewCat(cfg.CatPerils, rng),
		selector:    quoting.NewSelector(cfg, rng),
		acceptance:  quoting.NewAcceptance(cfg, rng),
		submissions: make(map[int64]*domain.Submission),
		policies:    make(map[int64]*domain.Policy),
		inforce:     make(map[exposureKey][]int64),
		horizon:     cfg.Horizon(),
	}

	perils := make([]string, 0, len(cfg.CatPerils)+1)
	perils = append(perils, domain.PerilAttritional)
	for _, p := range cfg.CatPerils {
		perils = append(perils, p.Name)
	}

	m.insureds = make([]*domain.Insured, cfg.Population)
	for i := range m.insureds {
		m.insureds[i] = &domain.Insured{
			ID:         int64(i),
			Territory:  cfg.Territories[i%len(cfg.Territories)],
			SumInsured: cfg.SumInsured,
			Perils:     perils,
		}
	}

	m.insurers = make([]*domain.Insurer, cfg.Insurers.Count)
	for i := range m.insurers {
		m.insurers[i] = &domain.Insurer{
			ID:      int64(i),
			Capital: cfg.Insurers.InitialCapital,
		}
	}

	return m
}

// Run executes the full simulation: start event, pre-scheduled year
// boundaries and catastrophe occurrences, then the event loop to the
// horizon.
func (m *Market) Run() error {
	if err := m.events.Emit(0, events.SimulationStart{
		WarmupYears:   m.cfg.WarmupYears,
		AnalysisYears: m.cfg.AnalysisYears,
	}); err != nil {
		return err
	}

	for year := 1; year <= m.cfg.TotalYears(); year++ {
		m.sched.Schedule(money.YearStartDay(year), scheduler.YearBoundary{Year: year})
	}
	for _, occ := range m.cat.ScheduleOccurrences(m.cfg.TotalYears()) {
		m.sched.Schedule(occ.Day, scheduler.FireCat{Peril: occ.Peril, Region: occ.Region})
	}
	m.sched.Schedule(m.horizon, scheduler.EndSimulation{})

	for {
		day, action, ok := m.sched.PopNext()
		if !ok || day > m.horizon {
			break
		}
		if _, done := action.(scheduler.EndSimulation); done {
			break
		}
		if err := m.dispatch(day, action); err != nil {
			return err
		}
	}

	m.log.Info().Int("events", m.events.Len()).Msg("simulation complete")
	return m.events.Flush()
}

// Records returns the run's full event list for post-run aggregation.
func (m *Market) Records() []events.Record {
	return m.events.Records()
}

// Insurers returns the insurer population (post-run capital reads).
func (m *Market) Insurers() []*domain.Insurer {
	return m.insurers
}

func (m *Market) dispatch(day int, action scheduler.Action) error {
	switch a := action.(type) {
	case scheduler.YearBoundary:
		return m.handleYearBoundary(a)
	case scheduler.PresentSubmission:
		return m.handlePresentSubmission(day, a)
	case scheduler.PresentQuote:
		return m.handlePresentQuote(day, a)
	case scheduler.BindPolicy:
		return m.handleBindPolicy(day, a)
	case scheduler.ExpirePolicy:
		return m.handleExpirePolicy(day, a)
	case scheduler.FireAttritional:
		return m.handleFireAttritional(day, a)
	case scheduler.FireCat:
		return m.handleFireCat(day, a)
	default:
		return fmt.Errorf("internal invariant: unknown action %T on day %d", action, day)
	}
}

// handleYearBoundary spreads the year's submissions across its 360 days:
// deterministic slots, with the staggering stream shuffling which insured
// occupies which slot.
func (m *Market) handleYearBoundary(a scheduler.YearBoundary) error {
	order := make([]int64, len(m.insureds))
	for i := range order {
		order[i] = int64(i)
	}
	m.rng.Streamf("staggering:%d", a.Year).Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	start := money.YearStartDay(a.Year)
	for slot, insuredID := range order {
		day := start + slot*money.DaysPerYear/len(order)
		m.sched.Schedule(day, scheduler.PresentSubmission{InsuredID: insuredID, Year: a.Year})
	}
	return nil
}

// handlePresentSubmission runs the same-day leg of the quoting chain:
// coverage request, lead request, and the insurer's issue-or-decline.
func (m *Market) handlePresentSubmission(day int, a scheduler.PresentSubmission) error {
	insured := m.insureds[a.InsuredID]
	risk := insured.Risk()

	m.nextSubmissionID++
	sub := &domain.Submission{
		ID:        m.nextSubmissionID,
		InsuredID: a.InsuredID,
		Year:      a.Year,
		Risk:      risk,
		InsurerID: m.selector.SelectLead(a.InsuredID, a.Year, len(m.insurers)),
		State:     domain.SubmissionRequested,
	}
	m.submissions[sub.ID] = sub

	if err := m.events.Emit(day, events.CoverageRequested{
		SubmissionID: sub.ID,
		InsuredID:    insured.ID,
	}); err != nil {
		return err
	}
	if err := m.events.Emit(day, events.LeadQuoteRequested{
		SubmissionID: sub.ID,
		InsurerID:    sub.InsurerID,
		InsuredID:    insured.ID,
		Risk: events.RiskPayload{
			Territory:     risk.Territory,
			SumInsured:    risk.SumInsured,
			PerilsCovered: risk.PerilsCovered,
		},
	}); err != nil {
		return err
	}

	quote, issued := m.pricing.Quote(m.insurers[sub.InsurerID], risk, sub.ID)
	if !issued {
		sub.State = domain.SubmissionDeclined
		return m.events.Emit(day, events.LeadQuoteDeclined{
			SubmissionID: sub.ID,
			InsurerID:    sub.InsurerID,
		})
	}

	sub.Quote = &quote
	sub.State = domain.SubmissionIssued
	if err := m.events.Emit(day, events.LeadQuoteIssued{
		SubmissionID:       sub.ID,
		InsurerID:          sub.InsurerID,
		ATP:                quote.ATP,
		CatExposureAtQuote: quote.CatExposureAtQuote,
	}); err != nil {
		return err
	}

	m.sched.Schedule(day+1, scheduler.PresentQuote{SubmissionID: sub.ID})
	return nil
}

// handlePresentQuote presents the issued quote and resolves the insured's
// accept-or-reject on the same day.
func (m *Market) handlePresentQuote(day int, a scheduler.PresentQuote) error {
	sub, ok := m.submissions[a.SubmissionID]
	if !ok || sub.State != domain.SubmissionIssued {
		return fmt.Errorf("internal invariant: PresentQuote for submission %d in state %v", a.SubmissionID, stateOf(sub))
	}

	sub.State = domain.SubmissionPresented
	if err := m.events.Emit(day, events.QuotePresented{
		SubmissionID: sub.ID,
		InsurerID:    sub.InsurerID,
	}); err != nil {
		return err
	}

	if !m.acceptance.Accepts(sub.ID, sub.Quote.Premium) {
		sub.State = domain.SubmissionRejected
		return m.events.Emit(day, events.QuoteRejected{
			SubmissionID: sub.ID,
			InsurerID:    sub.InsurerID,
		})
	}

	sub.State = domain.SubmissionAccepted
	if err := m.events.Emit(day, events.QuoteAccepted{
		SubmissionID: sub.ID,
		Premium:      sub.Quote.Premium,
	}); err != nil {
		return err
	}

	m.sched.Schedule(day+1, scheduler.BindPolicy{SubmissionID: sub.ID})
	return nil
}

// handleBindPolicy creates the policy, books premium and exposure, and
// schedules the policy's attritional losses and expiry.
func (m *Market) handleBindPolicy(day int, a scheduler.BindPolicy) error {
	sub, ok := m.submissions[a.SubmissionID]
	if !ok || sub.State != domain.SubmissionAccepted {
		return fmt.Errorf("internal invariant: BindPolicy for submission %d in state %v", a.SubmissionID, stateOf(sub))
	}

	m.nextPolicyID++
	policy := &domain.Policy{
		ID:           m.nextPolicyID,
		InsurerID:    sub.InsurerID,
		InsuredID:    sub.InsuredID,
		SubmissionID: sub.ID,
		Risk:         sub.Risk,
		BoundDay:     day,
		ExpiryDay:    day + money.DaysPerYear,
	}
	m.policies[policy.ID] = policy
	sub.State = domain.SubmissionBound

	if err := m.events.Emit(day, events.PolicyBound{
		SubmissionID: sub.ID,
		PolicyID:     policy.ID,
		InsurerID:    policy.InsurerID,
		SumInsured:   policy.Risk.SumInsured,
	}); err != nil {
		return err
	}

	insurer := m.insurers[policy.InsurerID]
	insurer.CreditPremium(sub.Quote.Premium)
	if m.riskCatExposed(policy.Risk) {
		insurer.AddCatExposure(policy.Risk.SumInsured)
	}

	for _, p := range m.cfg.CatPerils {
		if policy.Risk.Covers(p.Name) && regionMatch(p.Regions, policy.Risk.Territory) {
			key := exposureKey{territory: policy.Risk.Territory, peril: p.Name}
			m.inforce[key] = append(m.inforce[key], policy.ID)
		}
	}

	for nonce, occ := range m.attr.Schedule(policy.ID, day, policy.Risk.SumInsured) {
		m.sched.Schedule(occ.Day, scheduler.FireAttritional{
			PolicyID:     policy.ID,
			Nonce:        nonce,
			GroundUpLoss: occ.GroundUpLoss,
		})
	}

	m.sched.Schedule(policy.ExpiryDay, scheduler.ExpirePolicy{PolicyID: policy.ID})
	return nil
}

// handleExpirePolicy ends the coverage window and releases exposure.
func (m *Market) handleExpirePolicy(day int, a scheduler.ExpirePolicy) error {
	policy, ok := m.policies[a.PolicyID]
	if !ok {
		return fmt.Errorf("internal invariant: ExpirePolicy for unknown policy %d", a.PolicyID)
	}
	if day != policy.ExpiryDay {
		return fmt.Errorf("internal invariant: policy %d expiring on day %d, expected %d", policy.ID, day, policy.ExpiryDay)
	}

	if err := m.events.Emit(day, events.PolicyExpired{PolicyID: policy.ID}); err != nil {
		return err
	}

	if m.riskCatExposed(policy.Risk) {
		m.insurers[policy.InsurerID].ReleaseCatExposure(policy.Risk.SumInsured)
	}
	for _, p := range m.cfg.CatPerils {
		if policy.Risk.Covers(p.Name) && regionMatch(p.Regions, policy.Risk.Territory) {
			key := exposureKey{territory: policy.Risk.Territory, peril: p.Name}
			m.inforce[key] = removeID(m.inforce[key], policy.ID)
		}
	}
	return nil
}

// handleFireAttritional lands one pre-drawn attritional occurrence.
func (m *Market) handleFireAttritional(day int, a scheduler.FireAttritional) error {
	policy, ok := m.policies[a.PolicyID]
	if !ok || !policy.InForce(day) {
		return fmt.Errorf("internal invariant: attritional loss %d for policy %d outside coverage on day %d",
			a.Nonce, a.PolicyID, day)
	}

	if err := m.events.Emit(day, events.InsuredLoss{
		PolicyID:     policy.ID,
		InsuredID:    policy.InsuredID,
		Peril:        domain.PerilAttritional,
		GroundUpLoss: a.GroundUpLoss,
	}); err != nil {
		return err
	}
	return m.settleLoss(day, policy, domain.PerilAttritional, a.GroundUpLoss)
}

// handleFireCat applies one market-wide occurrence: a single shared damage
// fraction across every matching in-force policy.
func (m *Market) handleFireCat(day int, a scheduler.FireCat) error {
	df := m.cat.DrawSeverity(a.Peril)

	if err := m.events.Emit(day, events.LossEvent{
		Peril:    a.Peril,
		Region:   a.Region,
		Severity: df,
	}); err != nil {
		return err
	}

	ids := m.inforce[exposureKey{territory: a.Region, peril: a.Peril}]
	for _, pid := range ids {
		policy := m.policies[pid]
		if policy == nil || !policy.InForce(day) {
			continue
		}
		gul := money.Fraction(policy.Risk.SumInsured, df)
		if err := m.events.Emit(day, events.InsuredLoss{
			PolicyID:     policy.ID,
			InsuredID:    policy.InsuredID,
			Peril:        a.Peril,
			GroundUpLoss: gul,
		}); err != nil {
			return err
		}
		if err := m.settleLoss(day, policy, a.Peril, gul); err != nil {
			return err
		}
	}
	return nil
}

func (m *Market) settleLoss(day int, policy *domain.Policy, peril string, gul money.Cents) error {
	insurer := m.insurers[policy.InsurerID]
	amount, err := m.settle.Settle(day, policy, insurer, peril, gul)
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	return m.events.Emit(day, events.ClaimSettled{
		PolicyID:  policy.ID,
		InsurerID: insurer.ID,
		Peril:     peril,
		Amount:    amount,
	})
}

// riskCatExposed reports whether the risk contributes to the cat exposure
// ledger: it covers a configured cat peril active in its territory.
func (m *Market) riskCatExposed(risk domain.Risk) bool {
	for _, p := range m.cfg.CatPerils {
		if risk.Covers(p.Name) && regionMatch(p.Regions, risk.Territory) {
			return true
		}
	}
	return false
}

func regionMatch(regions []string, territory string) bool {
	for _, r := range regions {
		if r == territory {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func stateOf(sub *domain.Submission) domain.SubmissionState {
	if sub == nil {
		return domain.SubmissionState(-1)
	}
	return sub.State
}
