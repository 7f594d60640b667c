package autotune

import (
	"math/rand"

	"github.com/camclarke11/Locatr/pkg/geo"
)

// probeSeed fixes probe sampling so repeated tuning runs benchmark the
// same request mix.
const probeSeed = 42

// syntheticPoints is the central-London grid used when no cached pairs
// are available to probe with.
var syntheticPoints = [][2]float64{
	{-0.1276, 51.5074},
	{-0.1410, 51.5010},
	{-0.0990, 51.5140},
	{-0.0760, 51.5210},
	{-0.1890, 51.4930},
	{-0.1100, 51.5300},
	{-0.0840, 51.5000},
	{-0.1500, 51.5150},
}

// PairSource yields previously resolved coordinate pairs in a
// deterministic order. The route cache satisfies this.
type PairSource interface {
	Pairs() []geo.CoordinatePair
}

// buildProbeSet assembles the benchmark request mix: real cached pairs
// when available, otherwise the synthetic grid with identical pairs
// excluded. The set is deterministically shuffled and expanded by cyclic
// repetition to exactly count pairs.
func buildProbeSet(source PairSource, count int) []geo.CoordinatePair {
	limit := count
	if limit < 40 {
		limit = 40
	}

	var pairs []geo.CoordinatePair
	if source != nil {
		pairs = append(pairs, source.Pairs()...)
	}
	if len(pairs) == 0 {
		pairs = syntheticPairs()
	}

	// Shuffle before truncating so a large cache is sampled across its
	// whole key range, not clipped to the smallest keys.
	rng := rand.New(rand.NewSource(probeSeed))
	rng.Shuffle(len(pairs), func(i, j int) {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}

	return expandCyclic(pairs, count)
}

// syntheticPairs returns every ordered non-identical pair of the grid.
func syntheticPairs() []geo.CoordinatePair {
	pairs := make([]geo.CoordinatePair, 0, len(syntheticPoints)*(len(syntheticPoints)-1))
	for _, start := range syntheticPoints {
		for _, end := range syntheticPoints {
			if start == end {
				continue
			}
			pairs = append(pairs, geo.CoordinatePair{
				StartLon: start[0], StartLat: start[1],
				EndLon: end[0], EndLat: end[1],
			})
		}
	}
	return pairs
}

// expandCyclic repeats pairs until the slice holds exactly target items.
func expandCyclic(pairs []geo.CoordinatePair, target int) []geo.CoordinatePair {
	if len(pairs) >= target {
		return pairs[:target]
	}
	out := make([]geo.CoordinatePair, 0, target)
	for i := 0; len(out) < target; i++ {
		out = append(out, pairs[i%len(pairs)])
	}
	return out
}
