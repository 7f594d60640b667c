package backfill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/camclarke11/Locatr/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for backfill progress.
var (
	backfillMonthsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backfill_months_total",
		Help: "Total backfill months by outcome",
	}, []string{"outcome"})

	backfillMonthDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backfill_month_duration_seconds",
		Help:    "Wall-clock duration of processed months",
		Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200},
	})
)

// ErrNoSourceData is returned when no month in the requested range has
// discoverable source data.
var ErrNoSourceData = errors.New("no month with source data found")

// Runner is the per-month pipeline collaborator the orchestrator drives.
type Runner interface {
	// HasOutput reports whether the month's output already exists.
	HasOutput(m Month) bool

	// Process runs the month's full pipeline.
	Process(ctx context.Context, m Month) error
}

// SourceProber reports whether source data is discoverable for a month.
type SourceProber interface {
	HasSource(m Month) bool
}

// Config holds orchestration configuration.
type Config struct {
	StartMonth Month
	EndMonth   Month

	// Resume skips months whose output already exists, without any work.
	Resume bool

	// ContinueOnError degrades a month-level failure from fatal to
	// logged-and-skipped.
	ContinueOnError bool

	// PauseFile is the sentinel whose existence requests a clean stop at
	// the next month boundary.
	PauseFile string

	// StateFile receives a progress snapshot after every month.
	StateFile string
}

// Orchestrator iterates the month sequence. It is strictly sequential:
// months never run concurrently, and pause is observed only at month
// boundaries.
type Orchestrator struct {
	config Config
	runner Runner
	logger zerolog.Logger
}

// NewOrchestrator validates the range and builds an orchestrator.
func NewOrchestrator(cfg Config, runner Runner) (*Orchestrator, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.StartMonth.After(cfg.EndMonth) {
		return nil, fmt.Errorf("start month %s is after end month %s", cfg.StartMonth, cfg.EndMonth)
	}
	return &Orchestrator{
		config: cfg,
		runner: runner,
		logger: logging.NewLogger("backfill"),
	}, nil
}

// Run executes the backfill and returns the final state. In-flight
// months are never interrupted; a pause sentinel or context cancellation
// takes effect between months.
func (o *Orchestrator) Run(ctx context.Context) (State, error) {
	months, err := Sequence(o.config.StartMonth, o.config.EndMonth)
	if err != nil {
		return State{}, err
	}

	started := time.Now()
	completed := 0
	nextIdx := 0

	o.logger.Info().
		Str("start", o.config.StartMonth.String()).
		Str("end", o.config.EndMonth.String()).
		Int("months", len(months)).
		Msg("Backfill plan")

	first := &months[0]
	if err := o.writeState(newState(StatusRunning, o.config.StartMonth, o.config.EndMonth,
		len(months), 0, nil, first, 0)); err != nil {
		return State{}, err
	}

	paused := false
	for i, month := range months {
		if err := ctx.Err(); err != nil {
			paused = true
			break
		}

		nextIdx = i + 1
		var next *Month
		if nextIdx < len(months) {
			next = &months[nextIdx]
		}

		if o.config.Resume && o.runner.HasOutput(month) {
			o.logger.Info().
				Int("index", i+1).
				Int("total", len(months)).
				Str("month", month.String()).
				Msg("Skipping month, output already exists")
			backfillMonthsTotal.WithLabelValues("skipped").Inc()
			completed++
		} else {
			o.logger.Info().
				Int("index", i+1).
				Int("total", len(months)).
				Str("month", month.String()).
				Msg("Processing month")
			monthStarted := time.Now()
			if err := o.runner.Process(ctx, month); err != nil {
				backfillMonthsTotal.WithLabelValues("failed").Inc()
				if !o.config.ContinueOnError {
					return State{}, fmt.Errorf("month %s: %w", month, err)
				}
				o.logger.Error().
					Err(err).
					Str("month", month.String()).
					Msg("Month failed, continuing")
			} else {
				backfillMonthDuration.Observe(time.Since(monthStarted).Seconds())
				backfillMonthsTotal.WithLabelValues("completed").Inc()
				completed++
				o.logProgress(completed, len(months), month, started)
			}
		}

		if err := o.writeState(newState(StatusRunning, o.config.StartMonth, o.config.EndMonth,
			len(months), completed, &month, next, time.Since(started))); err != nil {
			return State{}, err
		}

		if o.pauseRequested() {
			paused = true
			o.logger.Warn().
				Str("pause_file", o.config.PauseFile).
				Str("month", month.String()).
				Msg("Pause sentinel detected, stopping cleanly after current month")
			break
		}
	}

	if paused {
		var next *Month
		if nextIdx < len(months) {
			next = &months[nextIdx]
		}
		final := newState(StatusPaused, o.config.StartMonth, o.config.EndMonth,
			len(months), completed, nil, next, time.Since(started))
		if err := o.writeState(final); err != nil {
			return State{}, err
		}
		o.logger.Warn().
			Str("pause_file", o.config.PauseFile).
			Msg("Backfill paused; remove the sentinel and rerun with resume to continue")
		return final, nil
	}

	final := newState(StatusCompleted, o.config.StartMonth, o.config.EndMonth,
		len(months), completed, nil, nil, time.Since(started))
	if err := o.writeState(final); err != nil {
		return State{}, err
	}
	o.logger.Info().
		Int("completed", completed).
		Int("total", len(months)).
		Msg("Backfill finished")
	return final, nil
}

// pauseRequested tests the sentinel's existence only, never its contents.
func (o *Orchestrator) pauseRequested() bool {
	if o.config.PauseFile == "" {
		return false
	}
	_, err := os.Stat(o.config.PauseFile)
	return err == nil
}

func (o *Orchestrator) writeState(state State) error {
	if o.config.StateFile == "" {
		return nil
	}
	return state.Write(o.config.StateFile)
}

func (o *Orchestrator) logProgress(completed, total int, current Month, started time.Time) {
	elapsed := time.Since(started)
	avg := elapsed / time.Duration(max(completed, 1))
	remaining := total - completed
	o.logger.Info().
		Int("completed", completed).
		Int("total", total).
		Float64("progress_pct", float64(completed)/float64(total)*100).
		Str("last_month", current.String()).
		Dur("elapsed", elapsed).
		Dur("eta", avg*time.Duration(remaining)).
		Msg("Overall progress")
}

// ResolveEndMonth resolves an "auto" end-of-range boundary by probing
// backward from the month containing now until a month with discoverable
// source data is found. Falling below start is a configuration error.
func ResolveEndMonth(prober SourceProber, start Month, now time.Time) (Month, error) {
	for cursor := MonthOf(now.UTC()); !cursor.Before(start); cursor = cursor.Prev() {
		if prober.HasSource(cursor) {
			return cursor, nil
		}
	}
	return Month{}, fmt.Errorf("%w at or after %s", ErrNoSourceData, start)
}
