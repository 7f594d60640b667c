// Command route-backfill resolves cycling routes for historical trip
// months and exports enriched per-day parquet datasets.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/camclarke11/Locatr/internal/config"
	"github.com/camclarke11/Locatr/internal/pipeline"
	"github.com/camclarke11/Locatr/pkg/autotune"
	"github.com/camclarke11/Locatr/pkg/backfill"
	"github.com/camclarke11/Locatr/pkg/geo"
	"github.com/camclarke11/Locatr/pkg/hydrate"
	"github.com/camclarke11/Locatr/pkg/logging"
	"github.com/camclarke11/Locatr/pkg/route"
	"github.com/camclarke11/Locatr/pkg/routecache"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Backfill failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	resolverConfig := route.Config{
		BaseURL: cfg.OSRMURL,
		Timeout: time.Duration(cfg.RequestTimeoutS) * time.Second,
		Retry:   route.DefaultRetryConfig(),
	}

	workers, qps := cfg.Workers, cfg.QPS
	if cfg.AutoTune.Enabled {
		selected, err := runAutoTune(ctx, cfg, resolverConfig)
		if err != nil {
			return fmt.Errorf("auto-tune: %w", err)
		}
		workers, qps = selected.Workers, selected.QPS
		logger.Info().
			Int("workers", workers).
			Float64("qps", qps).
			Bool("degraded", selected.Degraded).
			Msg("Auto-tune selection applied")
		if cfg.AutoTune.ExitAfter {
			return nil
		}
	}

	runner := pipeline.NewRunner(pipeline.Config{
		SourceDir:      cfg.SourceDir,
		OutputDir:      cfg.OutputDir,
		RouteCachePath: cfg.RouteCache,
		BBox: geo.BoundingBox{
			LatMin: cfg.BBox.LatMin,
			LatMax: cfg.BBox.LatMax,
			LonMin: cfg.BBox.LonMin,
			LonMax: cfg.BBox.LonMax,
		},
		Hydrate: hydrate.Config{
			Workers:      workers,
			QPS:          qps,
			MaxNewRoutes: cfg.MaxNewRoutes,
			NewResolver: func() hydrate.Resolver {
				return route.NewResolver(resolverConfig)
			},
		},
	})

	startMonth, err := backfill.ParseMonth(cfg.StartMonth)
	if err != nil {
		return fmt.Errorf("start month: %w", err)
	}
	endMonth, err := resolveEndMonth(cfg.EndMonth, startMonth, runner)
	if err != nil {
		return err
	}

	orchestrator, err := backfill.NewOrchestrator(backfill.Config{
		StartMonth:      startMonth,
		EndMonth:        endMonth,
		Resume:          cfg.Resume,
		ContinueOnError: cfg.ContinueOnError,
		PauseFile:       cfg.PauseFile,
		StateFile:       cfg.StateFile,
	}, runner)
	if err != nil {
		return err
	}

	state, err := orchestrator.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Str("status", string(state.Status)).
		Int("completed_months", state.CompletedMonths).
		Float64("percent_complete", state.PercentComplete).
		Msg("Backfill finished")
	return nil
}

func resolveEndMonth(value string, start backfill.Month, prober backfill.SourceProber) (backfill.Month, error) {
	if value == "latest" {
		end, err := backfill.ResolveEndMonth(prober, start, time.Now().UTC())
		if err != nil {
			return backfill.Month{}, fmt.Errorf("end month: %w", err)
		}
		return end, nil
	}
	end, err := backfill.ParseMonth(value)
	if err != nil {
		return backfill.Month{}, fmt.Errorf("end month: %w", err)
	}
	return end, nil
}

// runAutoTune benchmarks the worker/qps grid against probes drawn from
// the persisted route cache, falling back to synthetic pairs on a cold
// start.
func runAutoTune(ctx context.Context, cfg *config.Config, resolverConfig route.Config) (autotune.Selection, error) {
	tuner, err := autotune.New(autotune.Config{
		ProbeCount:  cfg.AutoTune.ProbeCount,
		BaselineQPS: cfg.QPS,
		NewResolver: func() autotune.Resolver {
			return route.NewResolver(resolverConfig)
		},
	})
	if err != nil {
		return autotune.Selection{}, err
	}
	return tuner.Run(ctx, routecache.Load(cfg.RouteCache))
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics listener stopped")
	}
}
