// Package hydrate fans missing coordinate pairs out across a bounded
// worker pool, pacing every request through one shared rate limiter, and
// merges resolved routes into the cache.
package hydrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camclarke11/Locatr/pkg/geo"
	"github.com/camclarke11/Locatr/pkg/logging"
	"github.com/camclarke11/Locatr/pkg/ratelimit"
	"github.com/camclarke11/Locatr/pkg/route"
	"github.com/camclarke11/Locatr/pkg/routecache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for hydration cycles.
var (
	hydrateResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrate_results_total",
		Help: "Total hydrated pairs by result source",
	}, []string{"source"})

	hydrateCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydrate_cycles_total",
		Help: "Total hydration cycles run",
	})

	hydrateCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hydrate_cycle_duration_seconds",
		Help:    "Wall-clock duration of hydration cycles",
		Buckets: []float64{1, 10, 60, 300, 900, 3600},
	})
)

// Resolver resolves a single coordinate pair to a route.
type Resolver interface {
	Resolve(ctx context.Context, pair geo.CoordinatePair) (route.Result, error)
}

// ResolverFactory builds one resolver per worker, so each worker owns its
// own transport and connection state.
type ResolverFactory func() Resolver

// Config holds hydration configuration.
type Config struct {
	// Workers is the bounded pool size.
	Workers int

	// QPS is the global pacing budget shared by all workers.
	QPS float64

	// MaxNewRoutes caps resolver attempts per cycle; pairs past the cap
	// get a fallback_max_new_routes result without any network attempt.
	// Zero means uncapped.
	MaxNewRoutes int

	// NewResolver builds a worker's resolver.
	NewResolver ResolverFactory
}

// Stats summarizes one hydration cycle.
type Stats struct {
	Requested int // unique canonical pairs in the input
	Hits      int // already cached
	Missing   int // needed resolution
	Fetched   int // resolver results merged this cycle
	Resolved  int // resolver successes (osrm or stationary)
	FellBack  int // straight-line substitutes after resolver failure
	Capped    int // fallback_max_new_routes without a network attempt
	Elapsed   time.Duration
}

// Hydrate resolves every pair not yet present in cache and merges the
// results in place. A single routing failure never aborts the cycle; the
// failed pair gets a straight-line fallback. Returns once all missing
// pairs have a cache entry, or earlier if ctx is cancelled (results
// completed before cancellation stay merged).
func Hydrate(ctx context.Context, pairs []geo.CoordinatePair, cache *routecache.Cache, cfg Config) (Stats, error) {
	if cfg.Workers <= 0 {
		return Stats{}, fmt.Errorf("workers must be greater than 0 (got %d)", cfg.Workers)
	}
	if cfg.NewResolver == nil {
		return Stats{}, fmt.Errorf("resolver factory is required")
	}
	limiter, err := ratelimit.New(cfg.QPS)
	if err != nil {
		return Stats{}, fmt.Errorf("rate limiter: %w", err)
	}

	logger := logging.NewLogger("hydrator")
	started := time.Now()
	hydrateCyclesTotal.Inc()
	defer func() {
		hydrateCycleDuration.Observe(time.Since(started).Seconds())
	}()

	unique := dedupe(pairs)
	stats := Stats{Requested: len(unique)}

	missing := make([]geo.CoordinatePair, 0, len(unique))
	for _, pair := range unique {
		if _, ok := cache.Lookup(pair.Key()); ok {
			stats.Hits++
			continue
		}
		missing = append(missing, pair)
	}
	stats.Missing = len(missing)

	if len(missing) == 0 {
		logger.Info().Int("pairs", stats.Requested).Msg("All route pairs already cached")
		stats.Elapsed = time.Since(started)
		return stats, nil
	}

	toFetch := missing
	if cfg.MaxNewRoutes > 0 && len(missing) > cfg.MaxNewRoutes {
		logger.Warn().
			Int("cap", cfg.MaxNewRoutes).
			Int("missing", len(missing)).
			Msg("Capping resolver fetches for this cycle")
		toFetch = missing[:cfg.MaxNewRoutes]
		for _, pair := range missing[cfg.MaxNewRoutes:] {
			cache.Merge(route.Fallback(pair, route.SourceFallbackMaxNewRoutes))
			hydrateResultsTotal.WithLabelValues(string(route.SourceFallbackMaxNewRoutes)).Inc()
			stats.Capped++
		}
	}

	total := len(toFetch)
	logger.Info().
		Int("pairs", total).
		Int("workers", cfg.Workers).
		Float64("qps", cfg.QPS).
		Msg("Fetching routes")

	jobs := make(chan geo.CoordinatePair)
	results := make(chan route.Result, cfg.Workers)

	go func() {
		defer close(jobs)
		for _, pair := range toFetch {
			select {
			case jobs <- pair:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			worker(ctx, workerID, cfg.NewResolver(), limiter, jobs, results, logger)
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single-threaded merge phase: the collector is the only cache writer.
	completed := 0
	progressEvery := total / 100
	if progressEvery < 50 {
		progressEvery = 50
	}
	lastProgress := time.Now()
	for result := range results {
		cache.Merge(result)
		completed++

		switch result.Source {
		case route.SourceFallbackStraightLine:
			stats.FellBack++
		default:
			stats.Resolved++
		}
		hydrateResultsTotal.WithLabelValues(string(result.Source)).Inc()

		now := time.Now()
		if completed%progressEvery == 0 || now.Sub(lastProgress) >= 10*time.Second || completed == total {
			logProgress(logger, completed, total, started)
			lastProgress = now
		}
	}
	stats.Fetched = completed
	stats.Elapsed = time.Since(started)

	if err := ctx.Err(); err != nil {
		logger.Warn().
			Int("completed", completed).
			Int("total", total).
			Msg("Hydration cancelled, keeping completed results")
		return stats, fmt.Errorf("hydration cancelled: %w", err)
	}
	return stats, nil
}

// worker drains the job queue. Every resolve is preceded by an Acquire
// against the shared limiter; failures become straight-line fallbacks.
func worker(ctx context.Context, workerID int, resolver Resolver, limiter *ratelimit.Limiter, jobs <-chan geo.CoordinatePair, results chan<- route.Result, logger zerolog.Logger) {
	for pair := range jobs {
		select {
		case <-ctx.Done():
			logger.Debug().Int("worker_id", workerID).Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		limiter.Acquire()
		result, err := resolver.Resolve(ctx, pair)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation, not a routing failure. Drop the pair so no
				// fallback is written for work that was never attempted.
				return
			}
			logger.Debug().
				Err(err).
				Int("worker_id", workerID).
				Str("key", pair.Key()).
				Msg("Resolve failed, substituting straight-line fallback")
			result = route.Fallback(pair, route.SourceFallbackStraightLine)
		}

		select {
		case results <- result:
		case <-ctx.Done():
			return
		}
	}
}

func logProgress(logger zerolog.Logger, completed, total int, started time.Time) {
	elapsed := time.Since(started).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-6
	}
	rate := float64(completed) / elapsed
	remaining := total - completed
	eta := -1.0
	if rate > 0 {
		eta = float64(remaining) / rate
	}
	logger.Info().
		Int("completed", completed).
		Int("total", total).
		Float64("progress_pct", float64(completed)/float64(total)*100).
		Float64("pairs_per_sec", rate).
		Int("elapsed_s", int(elapsed)).
		Int("eta_s", int(eta)).
		Msg("Route fetch progress")
}

// dedupe canonicalizes pairs and removes duplicates, preserving first
// occurrence order. That order is the natural order the cap applies to.
func dedupe(pairs []geo.CoordinatePair) []geo.CoordinatePair {
	seen := make(map[string]struct{}, len(pairs))
	out := make([]geo.CoordinatePair, 0, len(pairs))
	for _, pair := range pairs {
		c := pair.Canonical()
		key := c.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
