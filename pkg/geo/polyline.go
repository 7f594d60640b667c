package geo

import (
	"github.com/twpayne/go-polyline"
)

// polyline6 is the codec OSRM uses when geometries=polyline6 is requested:
// standard Google polyline encoding at 1e-6 degree resolution.
var polyline6 = polyline.Codec{Dim: 2, Scale: 1e6}

// StraightLinePolyline encodes the pair as a polyline6 geometry containing
// the two endpoints, or a single point when the pair is stationary.
func StraightLinePolyline(p CoordinatePair) string {
	c := p.Canonical()
	coords := [][]float64{{c.StartLat, c.StartLon}}
	if !c.IsStationary() {
		coords = append(coords, []float64{c.EndLat, c.EndLon})
	}
	return string(polyline6.EncodeCoords(nil, coords))
}

// DecodePolyline decodes a polyline6 geometry into (lat, lon) coordinate
// rows. Used by consumers that need the raw points back (and by tests).
func DecodePolyline(s string) ([][]float64, error) {
	coords, _, err := polyline6.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	return coords, nil
}
