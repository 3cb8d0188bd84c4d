package settlement

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketsim/internal/domain"
	"github.com/aristath/marketsim/internal/money"
)

func testPolicy(si money.Cents) (*domain.Policy, *domain.Insurer) {
	ins := &domain.Insurer{ID: 2, Capital: 100_000}
	p := &domain.Policy{
		ID:        1,
		InsurerID: 2,
		InsuredID: 0,
		Risk:      domain.Risk{SumInsured: si},
		BoundDay:  10,
		ExpiryDay: 370,
	}
	return p, ins
}

func TestSettle_CapSaturation(t *testing.T) {
	// Sum insured 1000; losses of 700 then 600 settle as 700 then 300,
	// and a third loss in the same year settles nothing.
	e := New(zerolog.Nop())
	p, ins := testPolicy(1000)

	amt, err := e.Settle(20, p, ins, "Attritional", 700)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(700), amt)

	amt, err = e.Settle(30, p, ins, "Attritional", 600)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(300), amt, "second claim capped at remaining")

	amt, err = e.Settle(40, p, ins, "Attritional", 500)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), amt, "cap exhausted")

	assert.Equal(t, money.Cents(0), e.RemainingCap(p, money.Year(20)))
	assert.Equal(t, int64(100_000-1000), int64(ins.Capital))
}

func TestSettle_RemainingCapNonIncreasing(t *testing.T) {
	e := New(zerolog.Nop())
	p, ins := testPolicy(10_000)

	prev := e.RemainingCap(p, 1)
	for day := 11; day < 100; day += 7 {
		_, err := e.Settle(day, p, ins, "Attritional", 500)
		require.NoError(t, err)
		rem := e.RemainingCap(p, 1)
		assert.LessOrEqual(t, int64(rem), int64(prev))
		prev = rem
	}
}

func TestSettle_CapResetsAcrossYearBoundary(t *testing.T) {
	// A policy bound late in year 1 spans the boundary; the cap ledger is
	// keyed by (policy, year) so year 2 opens with the full sum insured.
	e := New(zerolog.Nop())
	ins := &domain.Insurer{ID: 2, Capital: 100_000}
	p := &domain.Policy{
		ID:        1,
		InsurerID: 2,
		Risk:      domain.Risk{SumInsured: 1000},
		BoundDay:  300,
		ExpiryDay: 660,
	}

	amt, err := e.Settle(310, p, ins, "Attritional", 1000)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1000), amt)

	amt, err = e.Settle(400, p, ins, "Attritional", 800)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(800), amt, "new policy year, fresh cap")
}

func TestSettle_ZeroEffectiveEmitsNothing(t *testing.T) {
	e := New(zerolog.Nop())
	p, ins := testPolicy(1000)

	amt, err := e.Settle(20, p, ins, "Attritional", 0)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), amt)
	assert.Equal(t, int64(100_000), int64(ins.Capital), "no capital movement")
}

func TestSettle_CapitalCanGoNegative(t *testing.T) {
	e := New(zerolog.Nop())
	ins := &domain.Insurer{ID: 2, Capital: 100}
	p := &domain.Policy{
		ID: 1, InsurerID: 2,
		Risk:     domain.Risk{SumInsured: 1000},
		BoundDay: 10, ExpiryDay: 370,
	}

	amt, err := e.Settle(20, p, ins, "WindstormAtlantic", 500)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(500), amt)
	assert.Equal(t, int64(-400), int64(ins.Capital))
}

func TestSettle_InvariantViolations(t *testing.T) {
	e := New(zerolog.Nop())
	p, ins := testPolicy(1000)

	t.Run("loss before bind", func(t *testing.T) {
		_, err := e.Settle(5, p, ins, "Attritional", 100)
		assert.Error(t, err)
	})

	t.Run("loss on expiry day", func(t *testing.T) {
		_, err := e.Settle(370, p, ins, "Attritional", 100)
		assert.Error(t, err)
	})

	t.Run("wrong insurer", func(t *testing.T) {
		stranger := &domain.Insurer{ID: 9}
		_, err := e.Settle(20, p, stranger, "Attritional", 100)
		assert.Error(t, err)
	})

	t.Run("negative loss", func(t *testing.T) {
		_, err := e.Settle(20, p, ins, "Attritional", -1)
		assert.Error(t, err)
	})
}
