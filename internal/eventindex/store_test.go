package eventindex

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketsim/internal/config"
	"github.com/aristath/marketsim/internal/database"
	"github.com/aristath/marketsim/internal/market"
	"github.com/aristath/marketsim/internal/money"
	"github.com/aristath/marketsim/internal/summary"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "runindex.db"),
		Name: "runindex",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func smallRun(t *testing.T, seed uint64) (*market.Market, []summary.YearStats, *config.Config) {
	t.Helper()
	cfg := config.Canonical()
	cfg.WarmupYears = 0
	cfg.AnalysisYears = 1
	cfg.Population = 5
	cfg.Attritional.AnnualRate = 1
	require.NoError(t, cfg.Validate())

	m := market.New(cfg, seed, zerolog.Nop(), nil)
	require.NoError(t, m.Run())

	initial := money.Cents(cfg.Insurers.Count) * cfg.Insurers.InitialCapital
	stats := summary.Aggregate(m.Records(), cfg.TotalYears(), initial)
	return m, stats, cfg
}

func TestStore_SaveAndReadRun(t *testing.T) {
	store := testStore(t)
	m, stats, cfg := smallRun(t, 42)

	require.NoError(t, store.SaveRun(42, m.Records(), stats))

	got, err := store.Run(42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Seed)
	assert.Equal(t, len(m.Records()), got.EventCount)
	assert.Equal(t, cfg.WarmupYears, got.WarmupYears)
	assert.Equal(t, cfg.AnalysisYears, got.AnalysisYears)
	require.Len(t, got.YearStats, cfg.TotalYears())
	assert.Equal(t, stats, got.YearStats, "msgpack round-trip preserves year stats")
	assert.Greater(t, got.MaxDay, 360, "run-off extends past the submission year")
}

func TestStore_PoliciesIndexed(t *testing.T) {
	store := testStore(t)
	m, stats, _ := smallRun(t, 7)
	require.NoError(t, store.SaveRun(7, m.Records(), stats))

	policies, err := store.Policies(7)
	require.NoError(t, err)
	require.Len(t, policies, 5, "one bound policy per insured")

	prev := int64(0)
	for _, p := range policies {
		assert.Greater(t, p.PolicyID, prev, "ordered by policy id")
		prev = p.PolicyID
		assert.Equal(t, int64(5_000_000_000), p.SumInsured)
		require.NotNil(t, p.ExpiryDay)
		assert.Equal(t, p.BoundDay+360, *p.ExpiryDay)
	}
}

func TestStore_SaveRunIsIdempotentPerSeed(t *testing.T) {
	store := testStore(t)
	m, stats, _ := smallRun(t, 9)

	require.NoError(t, store.SaveRun(9, m.Records(), stats))
	require.NoError(t, store.SaveRun(9, m.Records(), stats))

	policies, err := store.Policies(9)
	require.NoError(t, err)
	assert.Len(t, policies, 5, "re-indexing must not duplicate rows")
}

func TestStore_RunsAreKeyedBySeed(t *testing.T) {
	store := testStore(t)

	mA, statsA, _ := smallRun(t, 1)
	mB, statsB, _ := smallRun(t, 2)
	require.NoError(t, store.SaveRun(1, mA.Records(), statsA))
	require.NoError(t, store.SaveRun(2, mB.Records(), statsB))

	a, err := store.Run(1)
	require.NoError(t, err)
	b, err := store.Run(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.Seed)
	assert.Equal(t, uint64(2), b.Seed)
}

func TestStore_MissingRun(t *testing.T) {
	store := testStore(t)
	_, err := store.Run(404)
	assert.Error(t, err)
}
