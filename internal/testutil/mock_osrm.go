// Package testutil provides testing utilities for the route backfill pipeline.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockOSRMResponse defines the behavior of a mock OSRM route response.
type MockOSRMResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockOSRM is a configurable mock OSRM server for testing.
type MockOSRM struct {
	server  *httptest.Server
	mu      sync.RWMutex
	handler func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount int
	lastPath     string
	lastQuery    string
}

// NewMockOSRM creates a mock OSRM server that answers every route request
// with a healthy single-route payload until configured otherwise.
func NewMockOSRM() *MockOSRM {
	mock := &MockOSRM{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastPath = r.URL.Path
		mock.lastQuery = r.URL.RawQuery
		handler := mock.handler
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOSRM) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOSRM) Close() {
	m.server.Close()
}

// Reset clears tracking counters and any configured handler.
func (m *MockOSRM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastPath = ""
	m.lastQuery = ""
	m.handler = nil
}

// SetHandler installs a custom handler for all route requests.
func (m *MockOSRM) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// SetResponse configures a fixed response for all route requests.
func (m *MockOSRM) SetResponse(resp MockOSRMResponse) {
	m.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockOSRM) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastPath returns the path of the most recent request.
func (m *MockOSRM) LastPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPath
}

// LastQuery returns the raw query string of the most recent request.
func (m *MockOSRM) LastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// defaultHandler answers any /route/v1/... request with one healthy route.
func (m *MockOSRM) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/route/v1/") {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"InvalidUrl"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(RouteBody("mock_geometry", 1500, 420)))
}

// RouteBody builds a single-route OSRM payload with the given geometry,
// distance and duration.
func RouteBody(geometry string, distance, duration float64) string {
	return fmt.Sprintf(
		`{"code":"Ok","routes":[{"geometry":%q,"distance":%g,"duration":%g}]}`,
		geometry, distance, duration,
	)
}

// NewHealthyResponse creates a 200 response carrying one route.
func NewHealthyResponse(geometry string, distance, duration float64) MockOSRMResponse {
	return MockOSRMResponse{
		StatusCode: http.StatusOK,
		Body:       RouteBody(geometry, distance, duration),
	}
}

// NewNoRouteResponse creates a 200 response whose payload carries no routes.
func NewNoRouteResponse() MockOSRMResponse {
	return MockOSRMResponse{
		StatusCode: http.StatusOK,
		Body:       `{"code":"NoRoute","routes":[]}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockOSRMResponse {
	return MockOSRMResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"Too many requests"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockOSRMResponse {
	return MockOSRMResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Internal server error"}`,
	}
}

// NewFlakyHandler fails the first failures requests with the given status,
// then answers healthily.
func NewFlakyHandler(failures int, failStatus int, geometry string) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	var served int
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		served++
		n := served
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(failStatus)
			w.Write([]byte(`{"message":"transient failure"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(RouteBody(geometry, 1500, 420)))
	}
}
