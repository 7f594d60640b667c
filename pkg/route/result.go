// Package route resolves coordinate pairs to cycling routes against an
// OSRM routing service, with bounded retries and straight-line fallbacks.
package route

import (
	"github.com/camclarke11/Locatr/pkg/geo"
)

// Source identifies how a route result was produced.
type Source string

const (
	// SourceOSRM marks a route fetched from the routing service.
	SourceOSRM Source = "osrm"

	// SourceStationary marks a degenerate route whose start and end are
	// the same point after rounding. No network call is made.
	SourceStationary Source = "stationary"

	// SourceFallbackStraightLine marks a straight-line substitute written
	// after the routing service failed for the pair.
	SourceFallbackStraightLine Source = "fallback_straight_line"

	// SourceFallbackMaxNewRoutes marks a straight-line substitute written
	// because the per-cycle cap on new fetches was exhausted.
	SourceFallbackMaxNewRoutes Source = "fallback_max_new_routes"

	// SourceFallbackMissing marks an enrichment-time substitute for a key
	// unexpectedly absent from the cache.
	SourceFallbackMissing Source = "fallback_missing"
)

// Result is an immutable resolved route for one coordinate pair. Geometry
// is a polyline6-encoded string as returned by OSRM.
type Result struct {
	Pair            geo.CoordinatePair
	Geometry        string
	DistanceMeters  float64
	DurationSeconds float64
	Source          Source
}

// Stationary builds the degenerate result for a pair whose endpoints
// round to the same point: zero distance, zero duration, single-point
// geometry.
func Stationary(pair geo.CoordinatePair) Result {
	c := pair.Canonical()
	return Result{
		Pair:     c,
		Geometry: geo.StraightLinePolyline(c),
		Source:   SourceStationary,
	}
}

// Fallback builds a straight-line substitute result for a pair the
// routing service could not (or was not allowed to) resolve.
func Fallback(pair geo.CoordinatePair, source Source) Result {
	c := pair.Canonical()
	return Result{
		Pair:     c,
		Geometry: geo.StraightLinePolyline(c),
		Source:   source,
	}
}

// Key returns the cache key of the result's pair.
func (r Result) Key() string {
	return r.Pair.Key()
}
