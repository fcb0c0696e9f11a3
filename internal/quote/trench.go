// Package quote derives trench pricing and system sizing from user-placed
// map positions and energy-usage inputs. Everything here is pure math over
// injected configuration; map rendering subscribes to the engine from outside.
package quote

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/solterra-energy/quote-cli/internal/model"
)

const (
	earthRadiusMeters = 6371000.0
	feetPerMeter      = 3.28084
)

// DistanceMeters returns the great-circle distance between two WGS84
// coordinates (X=lng, Y=lat) using the haversine formula.
func DistanceMeters(a, b geom.Coord) float64 {
	lat1 := a.Y() * math.Pi / 180
	lat2 := b.Y() * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.X() - a.X()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Trench computes the trench measurement between a meter and array position.
// Either position being nil yields the zero measurement. Pure: the same pair
// of positions always produces the same result.
func Trench(meter, array *model.GeoPosition, costPerFootUSD int) model.TrenchMeasurement {
	if meter == nil || array == nil {
		return model.TrenchMeasurement{}
	}
	meters := DistanceMeters(meter.Coord(), array.Coord())
	feet := int(math.Round(meters * feetPerMeter))
	if feet < 0 {
		feet = 0
	}
	return model.TrenchMeasurement{
		DistanceFeet: feet,
		CostUSD:      feet * costPerFootUSD,
	}
}
