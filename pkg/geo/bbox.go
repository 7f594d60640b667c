package geo

// BoundingBox is an axis-aligned lat/lon box used to filter out trips with
// implausible coordinates before hydration.
type BoundingBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// GreaterLondon is the default filter box for the Santander cycle dataset.
var GreaterLondon = BoundingBox{
	LatMin: 51.20,
	LatMax: 51.75,
	LonMin: -0.60,
	LonMax: 0.35,
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BoundingBox) Contains(lon, lat float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// ContainsPair reports whether both endpoints of the pair lie inside the box.
func (b BoundingBox) ContainsPair(p CoordinatePair) bool {
	return b.Contains(p.StartLon, p.StartLat) && b.Contains(p.EndLon, p.EndLat)
}
