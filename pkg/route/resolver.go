package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/camclarke11/Locatr/pkg/geo"
	"github.com/camclarke11/Locatr/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for route resolution.
var (
	osrmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osrm_requests_total",
		Help: "Total OSRM route requests by status",
	}, []string{"status"})

	osrmRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "osrm_request_duration_seconds",
		Help:    "OSRM route request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	osrmErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osrm_errors_total",
		Help: "Total OSRM errors by class",
	}, []string{"class"})
)

const userAgent = "locatr-route-backfill/1.0"

// Config holds resolver configuration.
type Config struct {
	// BaseURL is the OSRM server root (must expose /route/v1/bicycle).
	BaseURL string

	// Timeout applies per request attempt.
	Timeout time.Duration

	// Retry controls transport-level retry behavior.
	Retry RetryConfig
}

// DefaultConfig returns a resolver configuration against the public OSRM
// demo server with a 20s timeout.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://router.project-osrm.org",
		Timeout: 20 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// Resolver resolves a coordinate pair to a cycling route. Each Resolver
// owns its own HTTP client and transport; hydration workers hold one
// Resolver each so connection state is never shared across workers.
type Resolver struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// NewResolver creates a resolver with a dedicated transport.
func NewResolver(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Resolver{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config: cfg,
		logger: logging.NewLogger("route-resolver"),
	}
}

// osrmResponse is the subset of the OSRM route response we consume.
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Resolve resolves one coordinate pair. Stationary pairs short-circuit
// without a network call. Transient transport failures are retried with
// backoff; anything that still fails surfaces as a *RoutingError and the
// caller decides the fallback.
func (r *Resolver) Resolve(ctx context.Context, pair geo.CoordinatePair) (Result, error) {
	c := pair.Canonical()
	if c.IsStationary() {
		osrmRequestsTotal.WithLabelValues("stationary").Inc()
		return Stationary(c), nil
	}

	url := fmt.Sprintf(
		"%s/route/v1/bicycle/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline6&steps=false&alternatives=false",
		trimSlash(r.config.BaseURL), c.StartLon, c.StartLat, c.EndLon, c.EndLat,
	)

	start := time.Now()
	defer func() {
		osrmRequestDuration.Observe(time.Since(start).Seconds())
	}()

	var result Result
	err := retryWithBackoff(ctx, r.config.Retry, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()

		res, err := r.fetch(reqCtx, url, c)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, classifyError)

	if err != nil {
		class := classifyError(err)
		osrmErrorsTotal.WithLabelValues(string(class)).Inc()
		r.logger.Debug().
			Err(err).
			Str("key", c.Key()).
			Str("error_class", string(class)).
			Msg("Route resolution failed")
		return Result{}, err
	}
	return result, nil
}

// fetch performs a single request attempt.
func (r *Resolver) fetch(ctx context.Context, url string, pair geo.CoordinatePair) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		osrmRequestsTotal.WithLabelValues("network_error").Inc()
		return Result{}, &RoutingError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	osrmRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return Result{}, &RoutingError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &RoutingError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	var payload osrmResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, &RoutingError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "decode response body",
			Err:        err,
		}
	}

	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return Result{}, &RoutingError{
			StatusCode: resp.StatusCode,
			OSRMCode:   payload.Code,
			ErrorClass: ErrorClassClient,
			Message:    "no routes returned",
		}
	}

	best := payload.Routes[0]
	return Result{
		Pair:            pair,
		Geometry:        best.Geometry,
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
		Source:          SourceOSRM,
	}, nil
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// classifyError extracts the error class from a resolver error.
func classifyError(err error) ErrorClass {
	var re *RoutingError
	if errors.As(err, &re) {
		return re.ErrorClass
	}
	return ErrorClassNetwork
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
