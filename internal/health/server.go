// Package health provides the service's HTTP surface.
//
// This package implements:
//   - Health check endpoint with refresh status
//   - Prometheus metrics endpoint
//   - The report endpoints consumed by dashboards: JSON snapshot, manual
//     refetch, and the PNG summary
package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cmonreports/internal/logging"
)

// Status represents the application health status.
//
// Fields:
//   - Status: "healthy", or "degraded" when the last refresh failed
//   - Uptime: How long the application has been running
//   - LastFetchTime: When the last refresh cycle finished
//   - LastFetchStatus: "success" or the error of the last cycle
//   - Records: Records held from the last successful cycle
//   - Truncated: Whether that collection stopped at the page limit
type Status struct {
	Status          string `json:"status"`
	Uptime          string `json:"uptime"`
	LastFetchTime   string `json:"last_fetch_time"`
	LastFetchStatus string `json:"last_fetch_status"`
	Records         int    `json:"records"`
	Truncated       bool   `json:"truncated"`
}

// Monitor tracks application health.
//
// Thread-safety:
//   - All fields are protected by RWMutex
type Monitor struct {
	startTime       time.Time
	lastFetchTime   time.Time
	lastFetchStatus string
	failed          bool
	records         int
	truncated       bool
	mu              sync.RWMutex
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		startTime:       time.Now(),
		lastFetchStatus: "not started",
	}
}

// UpdateFetchStatus records a successful refresh cycle.
//
// Parameters:
//   - records: Number of records collected
//   - truncated: Whether collection stopped at the page limit
func (m *Monitor) UpdateFetchStatus(records int, truncated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFetchTime = time.Now()
	m.lastFetchStatus = "success"
	m.failed = false
	m.records = records
	m.truncated = truncated
}

// UpdateFetchError records a failed refresh cycle. Held record counts are
// left as they are.
func (m *Monitor) UpdateFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFetchTime = time.Now()
	m.lastFetchStatus = "error: " + err.Error()
	m.failed = true
}

// GetStatus returns the current health status.
func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := "healthy"
	if m.failed {
		status = "degraded"
	}

	lastFetch := ""
	if !m.lastFetchTime.IsZero() {
		lastFetch = m.lastFetchTime.Format("2006-01-02 15:04:05")
	}

	return Status{
		Status:          status,
		Uptime:          time.Since(m.startTime).Round(time.Second).String(),
		LastFetchTime:   lastFetch,
		LastFetchStatus: m.lastFetchStatus,
		Records:         m.records,
		Truncated:       m.truncated,
	}
}

// Server is the HTTP server for the health, metrics and report endpoints.
type Server struct {
	srv *http.Server
}

// StartServer starts the HTTP server in a background goroutine.
//
// Parameters:
//   - handler: Usually NewRouter(...)
//   - port: Port to listen on (e.g., "8080")
//
// Returns:
//   - *Server: Handle for graceful shutdown
func StartServer(handler http.Handler, port string) *Server {
	s := &Server{srv: &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}

	go func() {
		logging.Info().Str("port", port).Msg("✓ HTTP server started")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("⚠️  HTTP server error")
		}
	}()

	return s
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
