// Package geo provides the canonical coordinate-pair representation used
// for route cache keys, deduplication, and polyline geometry.
package geo

import (
	"fmt"
	"math"
)

// KeyPrecision is the number of decimal places coordinates are rounded to
// before key derivation or storage. Two pairs that round to the same values
// always produce the same key.
const KeyPrecision = 6

const keyScale = 1e6

// CoordinatePair is a directed (start -> end) pair of WGS84 coordinates.
type CoordinatePair struct {
	StartLon float64
	StartLat float64
	EndLon   float64
	EndLat   float64
}

// Round6 rounds a coordinate to 6 decimal places, half away from zero.
func Round6(v float64) float64 {
	r := math.Round(v*keyScale) / keyScale
	if r == 0 {
		// normalize negative zero so -0 and 0 share a key
		return 0
	}
	return r
}

// Canonical returns the pair with all four coordinates rounded to 6
// decimal places. Equality and key derivation are defined on this form.
func (p CoordinatePair) Canonical() CoordinatePair {
	return CoordinatePair{
		StartLon: Round6(p.StartLon),
		StartLat: Round6(p.StartLat),
		EndLon:   Round6(p.EndLon),
		EndLat:   Round6(p.EndLat),
	}
}

// Key returns the deterministic cache key for the pair. The key is derived
// from the canonical (rounded) coordinates, so call order and prior
// rounding do not matter.
func (p CoordinatePair) Key() string {
	c := p.Canonical()
	return fmt.Sprintf("%.6f|%.6f|%.6f|%.6f", c.StartLon, c.StartLat, c.EndLon, c.EndLat)
}

// IsStationary reports whether start and end round to the same point.
func (p CoordinatePair) IsStationary() bool {
	c := p.Canonical()
	return c.StartLon == c.EndLon && c.StartLat == c.EndLat
}

// IsFinite reports whether all four coordinates are finite numbers.
func (p CoordinatePair) IsFinite() bool {
	for _, v := range []float64{p.StartLon, p.StartLat, p.EndLon, p.EndLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
