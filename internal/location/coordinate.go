// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"math"
)

const (
	EarthRadius       = 6371000.0 // meters
	DistanceThreshold = 10.0      // meters
	AccuracyThreshold = 50.0
)

// Typical accuracies in meters for sources that only report a resolution level.
const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4
)

// DistanceTo returns the great-circle distance in meters between two positions using the
// Haversine formula.
func (p Position) DistanceTo(other Position) float64 {
	dLat := (p.Lat - other.Lat) * math.Pi / 180
	dLon := (p.Lon - other.Lon) * math.Pi / 180
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// HasSignificantChange reports whether p moved further than DistanceThreshold from other,
// or became significantly more accurate.
func (p Position) HasSignificantChange(other Position) bool {
	// Higher accuracy always trumps the distance threshold.
	if p.Accuracy < other.Accuracy && math.Abs(p.Accuracy-other.Accuracy) > AccuracyThreshold {
		return true
	}
	return p.DistanceTo(other) > DistanceThreshold
}

// Valid checks if the position is within the EPSG:4326 bounds.
func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
