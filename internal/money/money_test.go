package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYear(t *testing.T) {
	tests := []struct {
		name string
		day  int
		want int
	}{
		{"day zero is year one", 0, 1},
		{"last day of year one", 359, 1},
		{"first day of year two", 360, 2},
		{"mid year three", 900, 3},
		{"year boundary", 720, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Year(tt.day))
		})
	}
}

func TestYearStartDay(t *testing.T) {
	assert.Equal(t, 0, YearStartDay(1))
	assert.Equal(t, 360, YearStartDay(2))
	assert.Equal(t, 3240, YearStartDay(10))
}

func TestFraction_Truncates(t *testing.T) {
	tests := []struct {
		name     string
		amount   Cents
		fraction float64
		want     Cents
	}{
		{"exact", 1000, 0.5, 500},
		{"truncation", 1000, 0.0015, 1},
		{"sub-cent truncates to zero", 100, 0.001, 0},
		{"full fraction", 12345, 1.0, 12345},
		{"zero fraction", 12345, 0, 0},
		{"negative fraction clamps to zero", 12345, -0.5, 0},
		{"zero amount", 0, 0.7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fraction(tt.amount, tt.fraction))
		})
	}
}

func TestMin(t *testing.T) {
	assert.Equal(t, Cents(3), Min(3, 7))
	assert.Equal(t, Cents(3), Min(7, 3))
	assert.Equal(t, Cents(-1), Min(-1, 0))
}
