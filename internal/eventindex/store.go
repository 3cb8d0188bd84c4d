// Package eventindex persists a compact per-run index of the event stream:
// the policy table and the per-year aggregates, keyed by seed. Downstream
// tools read the index instead of re-parsing the NDJSON log. The year
// statistics travel as one msgpack blob per run.
package eventindex

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/marketsim/internal/database"
	"github.com/aristath/marketsim/internal/events"
	"github.com/aristath/marketsim/internal/summary"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	seed INTEGER PRIMARY KEY,
	event_count INTEGER NOT NULL,
	max_day INTEGER NOT NULL,
	warmup_years INTEGER NOT NULL,
	analysis_years INTEGER NOT NULL,
	year_stats BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS policies (
	seed INTEGER NOT NULL,
	policy_id INTEGER NOT NULL,
	submission_id INTEGER NOT NULL,
	insurer_id INTEGER NOT NULL,
	insured_id INTEGER NOT NULL,
	sum_insured INTEGER NOT NULL,
	bound_day INTEGER NOT NULL,
	expiry_day INTEGER,
	PRIMARY KEY (seed, policy_id)
);
`

// RunSummary is the stored header row for one seed.
type RunSummary struct {
	Seed          uint64
	EventCount    int
	MaxDay        int
	WarmupYears   int
	AnalysisYears int
	YearStats     []summary.YearStats
}

// PolicyRow is one indexed policy.
type PolicyRow struct {
	PolicyID     int64
	SubmissionID int64
	InsurerID    int64
	InsuredID    int64
	SumInsured   int64
	BoundDay     int
	ExpiryDay    *int
}

// Store writes and reads the run index.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore opens the store and ensures the schema exists.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("create run index schema: %w", err)
	}
	return &Store{
		db:  db,
		log: log.With().Str("component", "eventindex").Logger(),
	}, nil
}

// SaveRun indexes one completed run, replacing any previous index for the
// same seed.
func (s *Store) SaveRun(seed uint64, records []events.Record, stats []summary.YearStats) error {
	blob, err := msgpack.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode year stats: %w", err)
	}

	var (
		maxDay        int
		warmupYears   int
		analysisYears int
	)
	type policyAcc struct {
		row PolicyRow
	}
	insuredBySub := map[int64]int64{}
	siBySub := map[int64]int64{}
	policies := make([]*policyAcc, 0, 64)
	byID := map[int64]*policyAcc{}

	for _, r := range records {
		if r.Day > maxDay {
			maxDay = r.Day
		}
		switch p := r.Payload.(type) {
		case events.SimulationStart:
			warmupYears = p.WarmupYears
			analysisYears = p.AnalysisYears
		case events.LeadQuoteRequested:
			insuredBySub[p.SubmissionID] = p.InsuredID
			siBySub[p.SubmissionID] = int64(p.Risk.SumInsured)
		case events.PolicyBound:
			acc := &policyAcc{row: PolicyRow{
				PolicyID:     p.PolicyID,
				SubmissionID: p.SubmissionID,
				InsurerID:    p.InsurerID,
				InsuredID:    insuredBySub[p.SubmissionID],
				SumInsured:   int64(p.SumInsured),
				BoundDay:     r.Day,
			}}
			if acc.row.SumInsured == 0 {
				acc.row.SumInsured = siBySub[p.SubmissionID]
			}
			policies = append(policies, acc)
			byID[p.PolicyID] = acc
		case events.PolicyExpired:
			if acc, ok := byID[p.PolicyID]; ok {
				day := r.Day
				acc.row.ExpiryDay = &day
			}
		}
	}

	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin run index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM policies WHERE seed = ?`, int64(seed)); err != nil {
		return fmt.Errorf("clear policy index for seed %d: %w", seed, err)
	}
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO runs
			(seed, event_count, max_day, warmup_years, analysis_years, year_stats)
		VALUES (?, ?, ?, ?, ?, ?)`,
		int64(seed), len(records), maxDay, warmupYears, analysisYears, blob,
	); err != nil {
		return fmt.Errorf("insert run row for seed %d: %w", seed, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO policies
			(seed, policy_id, submission_id, insurer_id, insured_id, sum_insured, bound_day, expiry_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare policy insert: %w", err)
	}
	defer stmt.Close()

	for _, acc := range policies {
		var expiry sql.NullInt64
		if acc.row.ExpiryDay != nil {
			expiry = sql.NullInt64{Int64: int64(*acc.row.ExpiryDay), Valid: true}
		}
		if _, err := stmt.Exec(
			int64(seed), acc.row.PolicyID, acc.row.SubmissionID, acc.row.InsurerID,
			acc.row.InsuredID, acc.row.SumInsured, acc.row.BoundDay, expiry,
		); err != nil {
			return fmt.Errorf("insert policy %d for seed %d: %w", acc.row.PolicyID, seed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run index for seed %d: %w", seed, err)
	}

	s.log.Debug().
		Uint64("seed", seed).
		Int("events", len(records)).
		Int("policies", len(policies)).
		Msg("run indexed")
	return nil
}

// Run reads the stored header and year statistics for a seed.
func (s *Store) Run(seed uint64) (*RunSummary, error) {
	row := s.db.Conn().QueryRow(`
		SELECT event_count, max_day, warmup_years, analysis_years, year_stats
		FROM runs WHERE seed = ?`, int64(seed))

	out := &RunSummary{Seed: seed}
	var blob []byte
	if err := row.Scan(&out.EventCount, &out.MaxDay, &out.WarmupYears, &out.AnalysisYears, &blob); err != nil {
		return nil, fmt.Errorf("read run %d: %w", seed, err)
	}
	if err := msgpack.Unmarshal(blob, &out.YearStats); err != nil {
		return nil, fmt.Errorf("decode year stats for run %d: %w", seed, err)
	}
	return out, nil
}

// Policies reads the indexed policies for a seed in policy-id order.
func (s *Store) Policies(seed uint64) ([]PolicyRow, error) {
	rows, err := s.db.Conn().Query(`
		SELECT policy_id, submission_id, insurer_id, insured_id, sum_insured, bound_day, expiry_day
		FROM policies WHERE seed = ? ORDER BY policy_id`, int64(seed))
	if err != nil {
		return nil, fmt.Errorf("read policies for run %d: %w", seed, err)
	}
	defer rows.Close()

	var out []PolicyRow
	for rows.Next() {
		var p PolicyRow
		var expiry sql.NullInt64
		if err := rows.Scan(&p.PolicyID, &p.SubmissionID, &p.InsurerID, &p.InsuredID,
			&p.SumInsured, &p.BoundDay, &expiry); err != nil {
			return nil, fmt.Errorf("scan policy row: %w", err)
		}
		if expiry.Valid {
			day := int(expiry.Int64)
			p.ExpiryDay = &day
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy rows: %w", err)
	}
	return out, nil
}
