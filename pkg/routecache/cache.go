// Package routecache persists resolved routes keyed by their canonical
// coordinate pair, so repeated runs never refetch known routes.
package routecache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/camclarke11/Locatr/pkg/geo"
	"github.com/camclarke11/Locatr/pkg/logging"
	"github.com/camclarke11/Locatr/pkg/route"
	"github.com/parquet-go/parquet-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cache operations.
var (
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "route_cache_entries",
		Help: "Number of entries currently held by the route cache",
	})

	cacheLoadErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "route_cache_load_errors_total",
		Help: "Total number of cache loads degraded to an empty cache",
	})

	cacheSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "route_cache_saves_total",
		Help: "Total number of cache files written",
	})
)

// row is the on-disk parquet schema. Rows are written sorted by the four
// coordinate columns for reproducible diffs and effective compression.
type row struct {
	StartLon       float64 `parquet:"start_lon"`
	StartLat       float64 `parquet:"start_lat"`
	EndLon         float64 `parquet:"end_lon"`
	EndLat         float64 `parquet:"end_lat"`
	RouteGeometry  string  `parquet:"route_geometry,zstd"`
	RouteDistanceM float64 `parquet:"route_distance_m"`
	RouteDurationS float64 `parquet:"route_duration_s"`
	RouteSource    string  `parquet:"route_source"`
}

// Cache is an in-memory route store backed by a parquet file. It is not
// safe for concurrent mutation; the hydrator merges results from a single
// collector goroutine.
type Cache struct {
	entries map[string]route.Result
	logger  zerolog.Logger
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]route.Result),
		logger:  logging.NewLogger("route-cache"),
	}
}

// Load reads the cache file at path. A missing, unreadable, or
// mis-schema'd file degrades to an empty cache and is never fatal.
func Load(path string) *Cache {
	cache := New()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cache
	}

	rows, err := parquet.ReadFile[row](path)
	if err != nil {
		cacheLoadErrorsTotal.Inc()
		cache.logger.Warn().
			Err(err).
			Str("path", path).
			Msg("Route cache unreadable, starting empty")
		return cache
	}

	for _, r := range rows {
		result := route.Result{
			Pair: geo.CoordinatePair{
				StartLon: r.StartLon,
				StartLat: r.StartLat,
				EndLon:   r.EndLon,
				EndLat:   r.EndLat,
			},
			Geometry:        r.RouteGeometry,
			DistanceMeters:  r.RouteDistanceM,
			DurationSeconds: r.RouteDurationS,
			Source:          route.Source(r.RouteSource),
		}
		cache.entries[result.Key()] = result
	}

	cacheEntries.Set(float64(len(cache.entries)))
	cache.logger.Info().
		Int("entries", len(cache.entries)).
		Str("path", path).
		Msg("Loaded route cache")
	return cache
}

// Lookup returns the cached result for key, if present.
func (c *Cache) Lookup(key string) (route.Result, bool) {
	result, ok := c.entries[key]
	return result, ok
}

// Merge stores a result under its pair's key. Merging the same key twice
// is an idempotent overwrite.
func (c *Cache) Merge(result route.Result) {
	c.entries[result.Key()] = result
	cacheEntries.Set(float64(len(c.entries)))
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Pairs returns all cached coordinate pairs ordered by key, so samplers
// built on top of the cache are reproducible.
func (c *Cache) Pairs() []geo.CoordinatePair {
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]geo.CoordinatePair, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, c.entries[key].Pair)
	}
	return pairs
}

// Save writes all entries to path, sorted by the four coordinate columns
// ascending. An empty cache is a no-op. The write is atomic: a temp file
// in the same directory is renamed over the target.
func (c *Cache) Save(path string) error {
	if len(c.entries) == 0 {
		return nil
	}

	rows := make([]row, 0, len(c.entries))
	for _, result := range c.entries {
		rows = append(rows, row{
			StartLon:       result.Pair.StartLon,
			StartLat:       result.Pair.StartLat,
			EndLon:         result.Pair.EndLon,
			EndLat:         result.Pair.EndLat,
			RouteGeometry:  result.Geometry,
			RouteDistanceM: result.DistanceMeters,
			RouteDurationS: result.DurationSeconds,
			RouteSource:    string(result.Source),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.StartLon != b.StartLon {
			return a.StartLon < b.StartLon
		}
		if a.StartLat != b.StartLat {
			return a.StartLat < b.StartLat
		}
		if a.EndLon != b.EndLon {
			return a.EndLon < b.EndLon
		}
		return a.EndLat < b.EndLat
	})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write route cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace route cache: %w", err)
	}

	cacheSavesTotal.Inc()
	c.logger.Info().
		Int("entries", len(rows)).
		Str("path", path).
		Msg("Saved route cache")
	return nil
}
