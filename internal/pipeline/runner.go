package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/camclarke11/Locatr/pkg/backfill"
	"github.com/camclarke11/Locatr/pkg/geo"
	"github.com/camclarke11/Locatr/pkg/hydrate"
	"github.com/camclarke11/Locatr/pkg/logging"
	"github.com/camclarke11/Locatr/pkg/routecache"
	"github.com/rs/zerolog"
)

// Config holds the per-month pipeline configuration.
type Config struct {
	// SourceDir contains one {YYYY-MM}.csv per month.
	SourceDir string

	// OutputDir receives per-day parquet files and manifest.json.
	OutputDir string

	// RouteCachePath is the parquet route store shared across months.
	RouteCachePath string

	// BBox filters out trips with endpoints outside the service area.
	BBox geo.BoundingBox

	// Hydrate configures the route fetch pool.
	Hydrate hydrate.Config
}

// Runner is the backfill.Runner for trip enrichment months.
type Runner struct {
	config Config
	logger zerolog.Logger
}

// NewRunner creates a month pipeline runner.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		config: cfg,
		logger: logging.NewLogger("pipeline"),
	}
}

func (r *Runner) sourcePath(m backfill.Month) string {
	return filepath.Join(r.config.SourceDir, m.String()+".csv")
}

// HasSource reports whether the month's trip CSV exists.
func (r *Runner) HasSource(m backfill.Month) bool {
	info, err := os.Stat(r.sourcePath(m))
	return err == nil && !info.IsDir()
}

// HasOutput reports whether any per-day parquet file for the month
// already exists. This is the resume contract.
func (r *Runner) HasOutput(m backfill.Month) bool {
	matches, err := filepath.Glob(filepath.Join(r.config.OutputDir, m.String()+"-*.parquet"))
	return err == nil && len(matches) > 0
}

// Process runs the month's full pipeline: ingest, hydrate missing
// routes, persist the cache, enrich, and export. The route cache is
// saved before export so a late failure never loses fetched routes.
func (r *Runner) Process(ctx context.Context, m backfill.Month) error {
	started := time.Now()

	trips, err := ReadTrips(r.sourcePath(m), r.config.BBox)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", m, err)
	}
	if len(trips) == 0 {
		return fmt.Errorf("no trips found for %s", m)
	}
	pairs := UniquePairs(trips)
	r.logger.Info().
		Str("month", m.String()).
		Int("trips", len(trips)).
		Int("unique_pairs", len(pairs)).
		Msg("Ingested trips")

	cache := routecache.Load(r.config.RouteCachePath)
	stats, err := hydrate.Hydrate(ctx, pairs, cache, r.config.Hydrate)
	if saveErr := cache.Save(r.config.RouteCachePath); saveErr != nil {
		return fmt.Errorf("save route cache for %s: %w", m, saveErr)
	}
	if err != nil {
		return fmt.Errorf("hydrate %s: %w", m, err)
	}
	r.logger.Info().
		Str("month", m.String()).
		Int("hits", stats.Hits).
		Int("fetched", stats.Fetched).
		Int("fell_back", stats.FellBack).
		Int("capped", stats.Capped).
		Dur("elapsed", stats.Elapsed).
		Msg("Hydration cycle complete")

	rows := Enrich(trips, cache)
	files, err := WriteDailyParquet(rows, r.config.OutputDir)
	if err != nil {
		return fmt.Errorf("export %s: %w", m, err)
	}

	minStart, maxEnd := timeRange(trips)
	if err := WriteManifest(r.config.OutputDir, Manifest{
		Month:     m.String(),
		TripCount: len(trips),
		DateRangeUTC: ManifestRange{
			MinStartTime: minStart,
			MaxEndTime:   maxEnd,
		},
		RoutesCached: cache.Len(),
	}); err != nil {
		return fmt.Errorf("manifest %s: %w", m, err)
	}

	r.logger.Info().
		Str("month", m.String()).
		Int("trips", len(trips)).
		Int("day_files", len(files)).
		Dur("elapsed", time.Since(started)).
		Msg("Month pipeline complete")
	return nil
}

func timeRange(trips []Trip) (time.Time, time.Time) {
	minStart, maxEnd := trips[0].StartTime, trips[0].EndTime
	for _, trip := range trips[1:] {
		if trip.StartTime.Before(minStart) {
			minStart = trip.StartTime
		}
		if trip.EndTime.After(maxEnd) {
			maxEnd = trip.EndTime
		}
	}
	return minStart, maxEnd
}
