package model

// TrenchMeasurement is the derived trench run between the utility meter and
// the panel array. Cost is always DistanceFeet times the per-foot rate.
type TrenchMeasurement struct {
	DistanceFeet int `json:"distance_feet"`
	CostUSD      int `json:"cost_usd"`
}

// GridLayout is a near-square panel arrangement used for rendering only;
// pricing never depends on it.
type GridLayout struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// QuoteSummary is the priced system attached to a lead at capture time.
type QuoteSummary struct {
	Panels     int               `json:"panels"`
	SystemKW   float64           `json:"system_kw"`
	Trench     TrenchMeasurement `json:"trench"`
	AvgBillUSD float64           `json:"avg_bill_usd"`
	OffsetPct  float64           `json:"offset_pct"`
}
