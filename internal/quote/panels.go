package quote

import "math"

// Sizing converts a monthly electric bill and offset target into a panel
// count. All tunables come from configuration so rates can change without
// touching the algorithm.
type Sizing struct {
	PricePerKWh    float64 // USD per kWh on the utility bill
	CapacityFactor float64 // average output as a fraction of rated DC capacity
	PanelWatts     int     // rated wattage of one panel
}

// DCKilowatts returns the rated DC capacity needed to offset the given share
// of a household's usage. NaN or negative inputs clamp to zero.
func (s Sizing) DCKilowatts(avgBillUSD, offsetPct float64) float64 {
	avgBillUSD = clampNonNegative(avgBillUSD)
	offsetPct = clampNonNegative(offsetPct)
	if s.PricePerKWh <= 0 || s.CapacityFactor <= 0 {
		return 0
	}

	monthlyKWh := avgBillUSD / s.PricePerKWh
	targetKWh := monthlyKWh * offsetPct / 100
	return targetKWh / (30 * 24 * s.CapacityFactor)
}

// PanelCount returns the number of panels needed for the given bill and
// offset. Any positive capacity requirement yields at least one panel;
// monotonic non-decreasing in both inputs.
func (s Sizing) PanelCount(avgBillUSD, offsetPct float64) int {
	dcKW := s.DCKilowatts(avgBillUSD, offsetPct)
	if dcKW <= 0 || s.PanelWatts <= 0 {
		return 0
	}
	panels := int(math.Ceil(dcKW * 1000 / float64(s.PanelWatts)))
	if panels < 1 {
		panels = 1
	}
	return panels
}

// SystemKW returns the rated capacity of n panels in kilowatts.
func (s Sizing) SystemKW(n int) float64 {
	if n < 0 {
		return 0
	}
	return float64(n*s.PanelWatts) / 1000
}

func clampNonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
