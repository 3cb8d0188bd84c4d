// Package summary aggregates a run's in-memory event list into per-year
// market statistics and renders the optional cross-seed CSV that the
// distribution-plotting tools consume.
package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/aristath/marketsim/internal/domain"
	"github.com/aristath/marketsim/internal/events"
	"github.com/aristath/marketsim/internal/money"
)

// YearStats is one simulated year's aggregate picture. Premiums, ATP and
// exposure are attributed to the bind year; claims to the settlement year.
type YearStats struct {
	Year         int         `msgpack:"year"`
	Submissions  int         `msgpack:"submissions"`
	Bound        int         `msgpack:"bound"`
	Dropped      int         `msgpack:"dropped"`
	Premium      money.Cents `msgpack:"premium"`
	ATP          money.Cents `msgpack:"atp"`
	Claims       money.Cents `msgpack:"claims"`
	Exposure     money.Cents `msgpack:"exposure"`
	CatEvents    int         `msgpack:"cat_events"`
	TotalCapital money.Cents `msgpack:"total_capital"`
}

// LossRatio is claims over premium.
func (y YearStats) LossRatio() float64 {
	if y.Premium == 0 {
		return 0
	}
	return float64(y.Claims) / float64(y.Premium)
}

// CombinedRatio adds the expense component embedded in the premium load.
func (y YearStats) CombinedRatio(expenseLoad float64) float64 {
	if y.Premium == 0 {
		return 0
	}
	expenses := float64(y.ATP) * expenseLoad / (1 + expenseLoad)
	return (float64(y.Claims) + expenses) / float64(y.Premium)
}

// RateOnLine is premium over bound exposure.
func (y YearStats) RateOnLine() float64 {
	if y.Exposure == 0 {
		return 0
	}
	return float64(y.Premium) / float64(y.Exposure)
}

// Aggregate reduces a run's event list to per-year statistics for years
// 1..totalYears. The records must be in emission order (days
// non-decreasing), which the event log guarantees.
func Aggregate(records []events.Record, totalYears int, initialCapital money.Cents) []YearStats {
	stats := make([]YearStats, totalYears)
	for i := range stats {
		stats[i].Year = i + 1
	}
	at := func(day int) *YearStats {
		y := money.Year(day)
		if y < 1 || y > totalYears {
			return nil
		}
		return &stats[y-1]
	}

	premiumBySub := map[int64]money.Cents{}
	atpBySub := map[int64]money.Cents{}
	siBySub := map[int64]money.Cents{}
	requestYear := map[int64]int{}

	for _, r := range records {
		switch p := r.Payload.(type) {
		case events.CoverageRequested:
			requestYear[p.SubmissionID] = money.Year(r.Day)
			if s := at(r.Day); s != nil {
				s.Submissions++
			}
		case events.LeadQuoteRequested:
			siBySub[p.SubmissionID] = p.Risk.SumInsured
		case events.LeadQuoteIssued:
			atpBySub[p.SubmissionID] = p.ATP
		case events.QuoteAccepted:
			premiumBySub[p.SubmissionID] = p.Premium
		case events.PolicyBound:
			if s := at(r.Day); s != nil {
				s.Premium += premiumBySub[p.SubmissionID]
				s.ATP += atpBySub[p.SubmissionID]
				s.Exposure += p.SumInsured
			}
			// Bound count follows the submission year so dropped counts
			// reconcile with that year's submissions.
			if y := requestYear[p.SubmissionID]; y >= 1 && y <= totalYears {
				stats[y-1].Bound++
			}
		case events.LossEvent:
			if domain.IsCatPeril(p.Peril) {
				if s := at(r.Day); s != nil {
					s.CatEvents++
				}
			}
		case events.ClaimSettled:
			if s := at(r.Day); s != nil {
				s.Claims += p.Amount
			}
		}
	}

	capital := initialCapital
	for i := range stats {
		stats[i].Dropped = stats[i].Submissions - stats[i].Bound
		capital += stats[i].Premium - stats[i].Claims
		stats[i].TotalCapital = capital
	}
	return stats
}

// CSVHeader is the cross-seed summary header row.
var CSVHeader = []string{
	"seed", "year", "loss_ratio", "combined_ratio", "rate_on_line",
	"total_cap_b", "cat_events", "dropped_count",
}

// WriteCSV renders per-year rows for one seed. Set header to emit the
// header row first (the first seed of a batch).
func WriteCSV(w io.Writer, seed uint64, stats []YearStats, expenseLoad float64, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(CSVHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, y := range stats {
		row := []string{
			strconv.FormatUint(seed, 10),
			strconv.Itoa(y.Year),
			formatRatio(y.LossRatio()),
			formatRatio(y.CombinedRatio(expenseLoad)),
			formatRatio(y.RateOnLine()),
			formatRatio(float64(y.TotalCapital) / 100 / 1e9),
			strconv.Itoa(y.CatEvents),
			strconv.Itoa(y.Dropped),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
