package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/camclarke11/Locatr/pkg/geo"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2024-01.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

const tripHeader = "trip_id,start_time,end_time,start_lon,start_lat,end_lon,end_lat\n"

func TestReadTrips(t *testing.T) {
	path := writeCSV(t, tripHeader+
		"t1,2024-01-05T08:00:00Z,2024-01-05T08:20:00Z,-0.1276,51.5074,-0.0990,51.5140\n"+
		"t2,2024-01-06T09:00:00Z,2024-01-06T09:10:00Z,-0.0900,51.5100,-0.1100,51.5200\n")

	trips, err := ReadTrips(path, geo.GreaterLondon)
	if err != nil {
		t.Fatalf("ReadTrips() error = %v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("len(trips) = %d, want 2", len(trips))
	}
	if trips[0].TripID != "t1" {
		t.Errorf("TripID = %q, want t1", trips[0].TripID)
	}
	if trips[0].StartLon != -0.1276 || trips[0].EndLat != 51.5140 {
		t.Errorf("coordinates not parsed: %+v", trips[0])
	}
	if got := trips[0].EndTime.Sub(trips[0].StartTime).Minutes(); got != 20 {
		t.Errorf("duration = %v minutes, want 20", got)
	}
}

func TestReadTripsDropsBadRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{
			name: "unparseable time",
			row:  "bad,05/01/2024 08:00,2024-01-05T08:20:00Z,-0.1276,51.5074,-0.0990,51.5140",
		},
		{
			name: "unparseable coordinate",
			row:  "bad,2024-01-05T08:00:00Z,2024-01-05T08:20:00Z,east,51.5074,-0.0990,51.5140",
		},
		{
			name: "inverted time range",
			row:  "bad,2024-01-05T08:20:00Z,2024-01-05T08:00:00Z,-0.1276,51.5074,-0.0990,51.5140",
		},
		{
			name: "outside bounding box",
			row:  "bad,2024-01-05T08:00:00Z,2024-01-05T08:20:00Z,2.3522,48.8566,-0.0990,51.5140",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, tripHeader+
				tt.row+"\n"+
				"ok,2024-01-05T10:00:00Z,2024-01-05T10:15:00Z,-0.1276,51.5074,-0.0990,51.5140\n")

			trips, err := ReadTrips(path, geo.GreaterLondon)
			if err != nil {
				t.Fatalf("ReadTrips() error = %v", err)
			}
			if len(trips) != 1 {
				t.Fatalf("len(trips) = %d, want 1", len(trips))
			}
			if trips[0].TripID != "ok" {
				t.Errorf("surviving TripID = %q, want ok", trips[0].TripID)
			}
		})
	}
}

func TestReadTripsRejectsWrongSchema(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing column", header: "trip_id,start_time,end_time,start_lon,start_lat,end_lon\n"},
		{name: "renamed column", header: "id,start_time,end_time,start_lon,start_lat,end_lon,end_lat\n"},
		{name: "reordered columns", header: "start_time,trip_id,end_time,start_lon,start_lat,end_lon,end_lat\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, tt.header)
			if _, err := ReadTrips(path, geo.GreaterLondon); err == nil {
				t.Error("ReadTrips() error = nil, want schema error")
			}
		})
	}
}

func TestReadTripsMissingFile(t *testing.T) {
	if _, err := ReadTrips(filepath.Join(t.TempDir(), "absent.csv"), geo.GreaterLondon); err == nil {
		t.Error("ReadTrips() error = nil, want open error")
	}
}

func TestUniquePairs(t *testing.T) {
	trips := []Trip{
		{TripID: "a", StartLon: -0.1276, StartLat: 51.5074, EndLon: -0.0990, EndLat: 51.5140},
		// Same pair, sixth-decimal noise only.
		{TripID: "b", StartLon: -0.12760004, StartLat: 51.50740001, EndLon: -0.0990, EndLat: 51.5140},
		{TripID: "c", StartLon: -0.0900, StartLat: 51.5100, EndLon: -0.1100, EndLat: 51.5200},
	}

	pairs := UniquePairs(trips)
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
	if pairs[0].Key() != trips[0].Pair().Key() {
		t.Errorf("first pair = %s, want first occurrence preserved", pairs[0].Key())
	}
}
