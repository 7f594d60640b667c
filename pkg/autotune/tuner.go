// Package autotune benchmarks worker-count and rate-limit combinations
// against a probe set and selects an operating point for hydration, so
// the operator does not have to guess.
package autotune

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/camclarke11/Locatr/pkg/geo"
	"github.com/camclarke11/Locatr/pkg/logging"
	"github.com/camclarke11/Locatr/pkg/ratelimit"
	"github.com/camclarke11/Locatr/pkg/route"
	"github.com/rs/zerolog"
)

// minSuccessRate is the bar a candidate must clear to be eligible for
// throughput-based selection.
const minSuccessRate = 0.995

// Resolver resolves a single coordinate pair to a route.
type Resolver interface {
	Resolve(ctx context.Context, pair geo.CoordinatePair) (route.Result, error)
}

// ResolverFactory builds one resolver per benchmark worker.
type ResolverFactory func() Resolver

// Config holds tuner configuration.
type Config struct {
	// ProbeCount is the number of benchmark requests per candidate.
	ProbeCount int

	// BaselineQPS is the operator-supplied rate, always included in the
	// candidate grid.
	BaselineQPS float64

	// Parallelism is the hardware concurrency hint the worker grid is
	// derived from. Zero means runtime.NumCPU().
	Parallelism int

	// NewResolver builds a worker's resolver.
	NewResolver ResolverFactory
}

// Candidate is one measured (workers, qps) combination. Ephemeral:
// produced during calibration, never persisted.
type Candidate struct {
	Workers int
	QPS     float64
	Success int
	Failure int
	Elapsed time.Duration
}

// SuccessRate returns the fraction of probes that resolved.
func (c Candidate) SuccessRate() float64 {
	total := c.Success + c.Failure
	if total == 0 {
		return 0
	}
	return float64(c.Success) / float64(total)
}

// Throughput returns successful probes per second.
func (c Candidate) Throughput() float64 {
	elapsed := c.Elapsed.Seconds()
	if elapsed <= 0 {
		elapsed = 1e-6
	}
	return float64(c.Success) / elapsed
}

// Selection is the tuner's chosen operating point. Degraded means no
// candidate cleared the success-rate bar and the best-throughput
// candidate was chosen regardless.
type Selection struct {
	Workers    int
	QPS        float64
	Degraded   bool
	Candidates []Candidate
}

// Tuner benchmarks the candidate grid. It never writes probe results
// into the persistent route cache.
type Tuner struct {
	config Config
	logger zerolog.Logger
}

// New creates a tuner.
func New(cfg Config) (*Tuner, error) {
	if cfg.ProbeCount <= 0 {
		return nil, fmt.Errorf("probe count must be greater than 0 (got %d)", cfg.ProbeCount)
	}
	if cfg.BaselineQPS <= 0 {
		return nil, fmt.Errorf("baseline qps must be greater than 0 (got %v)", cfg.BaselineQPS)
	}
	if cfg.NewResolver == nil {
		return nil, fmt.Errorf("resolver factory is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	return &Tuner{
		config: cfg,
		logger: logging.NewLogger("auto-tuner"),
	}, nil
}

// Run benchmarks every candidate against the probe set and returns the
// selection. source provides probe pairs (typically the route cache);
// nil or an empty source falls back to the synthetic grid.
func (t *Tuner) Run(ctx context.Context, source PairSource) (Selection, error) {
	probes := buildProbeSet(source, t.config.ProbeCount)
	workerLevels := workerCandidates(t.config.Parallelism)
	qpsLevels := qpsCandidates(t.config.BaselineQPS)

	t.logger.Info().
		Int("probes", len(probes)).
		Int("worker_levels", len(workerLevels)).
		Int("qps_levels", len(qpsLevels)).
		Msg("Benchmarking resolver configurations")

	candidates := make([]Candidate, 0, len(workerLevels)*len(qpsLevels))
	for _, workers := range workerLevels {
		for _, qps := range qpsLevels {
			if err := ctx.Err(); err != nil {
				return Selection{}, fmt.Errorf("auto-tune cancelled: %w", err)
			}

			candidate, err := t.benchmark(ctx, probes, workers, qps)
			if err != nil {
				return Selection{}, err
			}
			candidates = append(candidates, candidate)

			t.logger.Info().
				Int("workers", workers).
				Float64("qps", qps).
				Float64("success_rate", candidate.SuccessRate()).
				Float64("throughput_rps", candidate.Throughput()).
				Msg("Benchmarked candidate")
		}
	}

	best, degraded := selectBest(candidates)
	selection := Selection{
		Workers:    best.Workers,
		QPS:        best.QPS,
		Degraded:   degraded,
		Candidates: candidates,
	}

	t.logger.Warn().
		Int("workers", selection.Workers).
		Float64("qps", selection.QPS).
		Float64("success_rate", best.SuccessRate()).
		Float64("throughput_rps", best.Throughput()).
		Msg("Auto-tune selected operating point")
	if degraded {
		t.logger.Warn().Msg("No candidate reached the success-rate bar; selected best-throughput fallback profile")
	}
	return selection, nil
}

// benchmark runs the full probe set through a pool at the candidate's
// worker count and rate limit. Failures are counted, not substituted.
func (t *Tuner) benchmark(ctx context.Context, probes []geo.CoordinatePair, workers int, qps float64) (Candidate, error) {
	limiter, err := ratelimit.New(qps)
	if err != nil {
		return Candidate{}, fmt.Errorf("rate limiter: %w", err)
	}

	jobs := make(chan geo.CoordinatePair)
	go func() {
		defer close(jobs)
		for _, pair := range probes {
			select {
			case jobs <- pair:
			case <-ctx.Done():
				return
			}
		}
	}()

	var success, failure int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	started := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resolver := t.config.NewResolver()
			for pair := range jobs {
				limiter.Acquire()
				_, err := resolver.Resolve(ctx, pair)
				mu.Lock()
				if err != nil {
					failure++
				} else {
					success++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return Candidate{
		Workers: workers,
		QPS:     qps,
		Success: int(success),
		Failure: int(failure),
		Elapsed: time.Since(started),
	}, nil
}

// selectBest picks the maximum-throughput candidate among those clearing
// the success-rate bar, or the overall maximum-throughput candidate
// (flagged degraded) when none does.
func selectBest(candidates []Candidate) (Candidate, bool) {
	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.SuccessRate() >= minSuccessRate {
			pool = append(pool, c)
		}
	}
	degraded := len(pool) == 0
	if degraded {
		pool = candidates
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.Throughput() > best.Throughput() {
			best = c
		}
	}
	return best, degraded
}

// workerCandidates derives the worker grid from a parallelism hint.
func workerCandidates(parallelism int) []int {
	set := map[int]struct{}{
		max(4, parallelism/2):    {},
		max(8, parallelism):      {},
		max(12, parallelism*3/2): {},
		max(16, parallelism*2):   {},
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// qpsCandidates always includes the operator baseline (floored at 20).
func qpsCandidates(baseline float64) []float64 {
	set := map[float64]struct{}{
		max(20, baseline): {},
		80:                     {},
		120:                    {},
		180:                    {},
		260:                    {},
		320:                    {},
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
