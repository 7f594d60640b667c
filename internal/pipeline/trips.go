// Package pipeline implements the per-month collaborator the backfill
// orchestrator drives: fixed-schema trip ingestion, route enrichment via
// the hydrator, and per-day parquet export.
package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/camclarke11/Locatr/pkg/geo"
)

// Trip is one normalized trip record. The source CSV carries exactly
// these columns; alias resolution for heterogeneous historical formats
// happens upstream of this pipeline.
type Trip struct {
	TripID    string
	StartTime time.Time
	EndTime   time.Time
	StartLon  float64
	StartLat  float64
	EndLon    float64
	EndLat    float64
}

// Pair returns the trip's canonical coordinate pair.
func (t Trip) Pair() geo.CoordinatePair {
	return geo.CoordinatePair{
		StartLon: t.StartLon,
		StartLat: t.StartLat,
		EndLon:   t.EndLon,
		EndLat:   t.EndLat,
	}.Canonical()
}

var tripColumns = []string{"trip_id", "start_time", "end_time", "start_lon", "start_lat", "end_lon", "end_lat"}

// ReadTrips parses the month's trip CSV, dropping rows with unparseable
// fields, inverted time ranges, or endpoints outside bbox. Times are
// RFC3339.
func ReadTrips(path string, bbox geo.BoundingBox) ([]Trip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trips: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(tripColumns) {
		return nil, fmt.Errorf("unexpected column count %d, want %d", len(header), len(tripColumns))
	}
	for i, want := range tripColumns {
		if header[i] != want {
			return nil, fmt.Errorf("unexpected column %q at position %d, want %q", header[i], i, want)
		}
	}

	var trips []Trip
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		trip, ok := parseTrip(record)
		if !ok {
			continue
		}
		if trip.EndTime.Before(trip.StartTime) {
			continue
		}
		if !bbox.ContainsPair(trip.Pair()) {
			continue
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

func parseTrip(record []string) (Trip, bool) {
	startTime, err := time.Parse(time.RFC3339, record[1])
	if err != nil {
		return Trip{}, false
	}
	endTime, err := time.Parse(time.RFC3339, record[2])
	if err != nil {
		return Trip{}, false
	}

	coords := make([]float64, 4)
	for i, raw := range record[3:7] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Trip{}, false
		}
		coords[i] = v
	}

	return Trip{
		TripID:    record[0],
		StartTime: startTime.UTC(),
		EndTime:   endTime.UTC(),
		StartLon:  coords[0],
		StartLat:  coords[1],
		EndLon:    coords[2],
		EndLat:    coords[3],
	}, true
}

// UniquePairs derives the deduplicated canonical pair set of the trips,
// preserving first-occurrence order.
func UniquePairs(trips []Trip) []geo.CoordinatePair {
	seen := make(map[string]struct{}, len(trips))
	var out []geo.CoordinatePair
	for _, trip := range trips {
		pair := trip.Pair()
		key := pair.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pair)
	}
	return out
}
