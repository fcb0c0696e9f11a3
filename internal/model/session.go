package model

import (
	"time"

	"github.com/twpayne/go-geom"
)

// GeoPosition is a WGS84 coordinate pair in longitude/latitude order.
type GeoPosition struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Coord returns the position as a go-geom coordinate (X=lng, Y=lat).
func (p GeoPosition) Coord() geom.Coord {
	return geom.Coord{p.Lng, p.Lat}
}

// PositionFromCoord builds a GeoPosition from a go-geom coordinate.
func PositionFromCoord(c geom.Coord) GeoPosition {
	return GeoPosition{Lng: c.X(), Lat: c.Y()}
}

// QuoteSession aggregates everything a visitor has entered during one quote
// flow. LeadID is generated at session start and stays stable for the life of
// the session; StartedAt feeds the time-to-complete spam heuristic.
type QuoteSession struct {
	LeadID        string       `json:"lead_id"`
	Address       string       `json:"address,omitempty"`
	Coordinates   *GeoPosition `json:"coordinates,omitempty"`
	MeterPosition *GeoPosition `json:"meter_position,omitempty"`
	ArrayPosition *GeoPosition `json:"array_position,omitempty"`
	AvgBillUSD    float64      `json:"avg_bill_usd,omitempty"`
	OffsetPct     float64      `json:"offset_pct,omitempty"`
	PanelCount    int          `json:"panel_count,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
}
