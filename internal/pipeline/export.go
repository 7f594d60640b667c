package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/camclarke11/Locatr/pkg/route"
	"github.com/camclarke11/Locatr/pkg/routecache"
	"github.com/parquet-go/parquet-go"
)

// enrichedRow is the per-day parquet schema served to dataset consumers.
type enrichedRow struct {
	TripID         string    `parquet:"trip_id"`
	StartTime      time.Time `parquet:"start_time,timestamp"`
	EndTime        time.Time `parquet:"end_time,timestamp"`
	RouteGeometry  string    `parquet:"route_geometry,zstd"`
	RouteSource    string    `parquet:"route_source"`
	RouteDistanceM float64   `parquet:"route_distance_m"`
	RouteDurationS float64   `parquet:"route_duration_s"`
}

var dayFilePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.parquet$`)

// Enrich joins each trip with its cached route. A key somehow absent
// from the cache gets a fallback_missing substitute; enrichment never
// fails a month.
func Enrich(trips []Trip, cache *routecache.Cache) []enrichedRow {
	rows := make([]enrichedRow, 0, len(trips))
	for _, trip := range trips {
		pair := trip.Pair()
		result, ok := cache.Lookup(pair.Key())
		if !ok {
			result = route.Fallback(pair, route.SourceFallbackMissing)
		}
		rows = append(rows, enrichedRow{
			TripID:         trip.TripID,
			StartTime:      trip.StartTime,
			EndTime:        trip.EndTime,
			RouteGeometry:  result.Geometry,
			RouteSource:    string(result.Source),
			RouteDistanceM: result.DistanceMeters,
			RouteDurationS: result.DurationSeconds,
		})
	}
	return rows
}

// WriteDailyParquet writes one parquet file per calendar day of the
// rows' start times, each sorted by start time. Returns the written
// file names.
func WriteDailyParquet(rows []enrichedRow, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	byDay := make(map[string][]enrichedRow)
	for _, row := range rows {
		day := row.StartTime.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], row)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var files []string
	for _, day := range days {
		dayRows := byDay[day]
		sort.Slice(dayRows, func(i, j int) bool {
			return dayRows[i].StartTime.Before(dayRows[j].StartTime)
		})

		name := day + ".parquet"
		if err := parquet.WriteFile(filepath.Join(outDir, name), dayRows); err != nil {
			return nil, fmt.Errorf("write day %s: %w", day, err)
		}
		files = append(files, name)
	}
	return files, nil
}

// ListDatasetFiles returns all per-day parquet files in the dataset
// directory, sorted by name.
func ListDatasetFiles(outDir string) ([]string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list dataset: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && dayFilePattern.MatchString(entry.Name()) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Manifest describes the dataset after a month's run.
type Manifest struct {
	Month        string        `json:"month"`
	TripCount    int           `json:"trip_count"`
	DateRangeUTC ManifestRange `json:"date_range_utc"`
	ParquetFiles []string      `json:"parquet_files"`
	RoutesCached int           `json:"routes_cached"`
	CreatedAtUTC time.Time     `json:"created_at_utc"`
}

// ManifestRange is the closed time range covered by the month's trips.
type ManifestRange struct {
	MinStartTime time.Time `json:"min_start_time"`
	MaxEndTime   time.Time `json:"max_end_time"`
}

// WriteManifest rewrites manifest.json to describe the whole dataset
// directory, not only the files this run produced.
func WriteManifest(outDir string, manifest Manifest) error {
	files, err := ListDatasetFiles(outDir)
	if err != nil {
		return err
	}
	manifest.ParquetFiles = files
	manifest.CreatedAtUTC = time.Now().UTC()

	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(filepath.Join(outDir, "manifest.json"), payload, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
