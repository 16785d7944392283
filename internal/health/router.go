package health

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cmonreports/internal/logging"
	"cmonreports/internal/refresh"
	"cmonreports/internal/summary"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxWindowDays bounds the ?days query parameter.
const maxWindowDays = 3650

// Reports is the part of the refresh scheduler the HTTP surface uses.
type Reports interface {
	Snapshot() refresh.Snapshot
	SnapshotFor(days int) refresh.Snapshot
	Refetch(ctx context.Context) bool
}

// RouterOptions configures the browser-facing middleware.
type RouterOptions struct {
	AllowedOrigins []string // CORS origins of dashboards reading the API
	RefetchLimit   int      // Manual refetches per client IP per RefetchWindow, 0 disables
	RefetchWindow  time.Duration
}

// handler serves the report endpoints.
type handler struct {
	monitor *Monitor
	reports Reports
	now     func() time.Time
}

// NewRouter builds the chi router for every endpoint.
//
// Endpoints:
//   - GET  /health                   Health status JSON
//   - GET  /metrics                  Prometheus metrics
//   - GET  /api/reports              Report snapshot JSON, optional ?days=N
//   - POST /api/reports/refetch      Manual blocking refresh
//   - GET  /api/reports/summary.png  PNG summary, optional ?days=N
func NewRouter(monitor *Monitor, reports Reports, opts RouterOptions) http.Handler {
	h := &handler{monitor: monitor, reports: reports, now: time.Now}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/reports", func(r chi.Router) {
		if len(opts.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: opts.AllowedOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         300,
			}))
		}

		r.Get("/", h.snapshot)
		r.Get("/summary.png", h.summaryImage)
		r.Group(func(r chi.Router) {
			if opts.RefetchLimit > 0 {
				r.Use(httprate.LimitByIP(opts.RefetchLimit, opts.RefetchWindow))
			}
			r.Post("/refetch", h.refetch)
		})
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.GetStatus())
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshotFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// refetch runs a manual cycle. The cycle outlives a disconnecting client so
// a half-finished refresh never blanks the view.
func (h *handler) refetch(w http.ResponseWriter, r *http.Request) {
	if !h.reports.Refetch(context.WithoutCancel(r.Context())) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a refresh is already in progress",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.reports.Snapshot())
}

func (h *handler) summaryImage(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshotFor(w, r)
	if !ok {
		return
	}

	data, err := summary.RenderReport(snap.Report(h.now()))
	if err != nil {
		logging.Error().Err(err).Msg("❌ Failed to render summary image")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// snapshotFor returns the current snapshot, with the analytics recomputed
// when the request asks for another window. It writes a 400 and returns
// false for an invalid window.
func (h *handler) snapshotFor(w http.ResponseWriter, r *http.Request) (refresh.Snapshot, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return h.reports.Snapshot(), true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxWindowDays {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "days must be an integer between 1 and " + strconv.Itoa(maxWindowDays),
		})
		return refresh.Snapshot{}, false
	}
	return h.reports.SnapshotFor(days), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

// requestLogger logs each request at debug level with its request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
