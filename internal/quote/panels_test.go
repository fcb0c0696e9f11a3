package quote

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSizing() Sizing {
	return Sizing{
		PricePerKWh:    0.14,
		CapacityFactor: 0.18,
		PanelWatts:     400,
	}
}

func TestPanelCount(t *testing.T) {
	t.Parallel()
	s := testSizing()

	tests := []struct {
		name   string
		bill   float64
		offset float64
		want   int
	}{
		{
			name: "typical household full offset",
			bill: 150, offset: 100,
			// 150/0.14 ≈ 1071 kWh/mo, dc ≈ 8.27 kW, ceil(8270/400) = 21
			want: 21,
		},
		{
			name: "oversized offset",
			bill: 150, offset: 120,
			want: 25,
		},
		{
			name: "zero bill yields zero panels",
			bill: 0, offset: 100,
			want: 0,
		},
		{
			name: "zero offset yields zero panels",
			bill: 150, offset: 0,
			want: 0,
		},
		{
			name: "tiny bill still yields one panel",
			bill: 1, offset: 100,
			want: 1,
		},
		{
			name: "negative bill clamps to zero",
			bill: -50, offset: 100,
			want: 0,
		},
		{
			name: "negative offset clamps to zero",
			bill: 150, offset: -20,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.PanelCount(tt.bill, tt.offset))
		})
	}
}

func TestPanelCountNaN(t *testing.T) {
	t.Parallel()
	s := testSizing()
	assert.Equal(t, 0, s.PanelCount(math.NaN(), 100))
	assert.Equal(t, 0, s.PanelCount(150, math.NaN()))
}

func TestPanelCountMonotonic(t *testing.T) {
	t.Parallel()
	s := testSizing()

	prev := 0
	for bill := 0.0; bill <= 500; bill += 10 {
		n := s.PanelCount(bill, 100)
		assert.GreaterOrEqual(t, n, prev, "panel count must not decrease as the bill grows (bill=%v)", bill)
		prev = n
	}

	prev = 0
	for offset := 0.0; offset <= 200; offset += 5 {
		n := s.PanelCount(150, offset)
		assert.GreaterOrEqual(t, n, prev, "panel count must not decrease as offset grows (offset=%v)", offset)
		prev = n
	}
}

func TestDCKilowatts(t *testing.T) {
	t.Parallel()
	s := testSizing()

	// 150/0.14 = 1071.43 kWh, / (30*24*0.18) = 8.267 kW
	assert.InDelta(t, 8.267, s.DCKilowatts(150, 100), 0.01)

	// Offset scales linearly.
	assert.InDelta(t, s.DCKilowatts(150, 100)/2, s.DCKilowatts(150, 50), 1e-9)

	// Misconfigured rates degrade to zero rather than dividing by zero.
	assert.Equal(t, 0.0, Sizing{CapacityFactor: 0.18, PanelWatts: 400}.DCKilowatts(150, 100))
	assert.Equal(t, 0.0, Sizing{PricePerKWh: 0.14, PanelWatts: 400}.DCKilowatts(150, 100))
}

func TestSystemKW(t *testing.T) {
	t.Parallel()
	s := testSizing()
	assert.Equal(t, 8.4, s.SystemKW(21))
	assert.Equal(t, 0.0, s.SystemKW(0))
	assert.Equal(t, 0.0, s.SystemKW(-3))
}
