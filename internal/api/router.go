// Package api assembles the public HTTP/WS surface (spec.md §4.F) out of
// the handlers built by internal/ingest and internal/query, adding the
// request instrumentation and panic recovery the teacher wraps its own
// mux.Router in (cmd/tempo/app/server_service.go builds s.handler by
// wrapping a *mux.Router in a middleware.Merge chain; here that chain is
// a small promauto-backed instrumentation middleware plus a recover
// handler, reimplemented directly rather than pulled from
// weaveworks/common since this gateway has no auth/gzip/tracing needs).
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/logdock/logdock/internal/engine"
	"github.com/logdock/logdock/internal/ingest"
	"github.com/logdock/logdock/internal/logging"
	"github.com/logdock/logdock/internal/query"
	"github.com/logdock/logdock/internal/subscriber"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "logdock",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Time taken to serve an HTTP request, by route and status class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	panicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logdock",
		Subsystem: "api",
		Name:      "handler_panics_total",
		Help:      "Number of HTTP handler invocations that recovered from a panic.",
	})
)

// BuildInfo is the supplemented GET /buildinfo payload (SPEC_FULL.md §3.1).
type BuildInfo struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// Router wires every route in SPEC_FULL.md §4.F onto a *mux.Router.
func Router(pipeline *ingest.Pipeline, registry *subscriber.Registry, eng engine.Client, info BuildInfo) *mux.Router {
	shaper := query.NewShaper(eng)
	r := mux.NewRouter()

	route(r, "/ingest", http.MethodPost, pipeline.HTTPHandler())
	route(r, "/ws", http.MethodGet, pipeline.WSHandler(registry))
	route(r, "/search", http.MethodGet, shaper.SearchHandler())
	route(r, "/projects", http.MethodGet, shaper.ProjectsHandler())
	route(r, "/trace/{id}", http.MethodGet, shaper.TraceHandler())
	route(r, "/errors", http.MethodGet, shaper.ErrorsHandler())
	route(r, "/health", http.MethodGet, query.HealthHandler())
	route(r, "/buildinfo", http.MethodGet, buildInfoHandler(info))

	return r
}

func route(r *mux.Router, path, method string, h http.HandlerFunc) {
	r.Handle(path, instrument(path, recoverMiddleware(h))).Methods(method)
}

// recoverMiddleware converts a panicking handler into a 500 instead of
// tearing down the whole server, mirroring the recover-and-log pattern the
// teacher applies around its gRPC stream handlers (cmd/tempo/app/server_service.go).
func recoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				panicsTotal.Inc()
				level.Error(logging.Logger).Log("msg", "recovered from handler panic", "route", r.URL.Path, "panic", rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request_duration_seconds per route/method/status,
// matching the per-route histogram the teacher's dskit/middleware.Instrument
// equivalent provides, scoped down to this gateway's small route table.
func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		requestDuration.WithLabelValues(route, r.Method, statusClass(rec.status)).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func buildInfoHandler(info BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	}
}
