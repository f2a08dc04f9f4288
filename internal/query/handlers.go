package query

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/logdock/logdock/internal/engine"
)

// Shaper builds the /search, /trace/:id, /errors, and /projects handlers
// around a search-engine client.
type Shaper struct {
	engine engine.Client
}

// NewShaper constructs a Shaper.
func NewShaper(eng engine.Client) *Shaper {
	return &Shaper{engine: eng}
}

// SearchResponse is the shaped /search response (spec.md §6).
type SearchResponse struct {
	TotalHits int64                       `json:"totalHits"`
	Facets    map[string]map[string]int64 `json:"facets"`
	Hits      []map[string]any            `json:"hits"`
}

// SearchHandler implements GET /search.
func (s *Shaper) SearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		since, err := parseSince(q.Get("since"), time.Hour)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		limit, err := clampLimit(q.Get("limit"), 20, 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		fb := newFilterBuilder().
			eq("project", q.Get("project")).
			eq("level", q.Get("level")).
			eq("traceId", q.Get("traceId")).
			eq("environment", q.Get("environment")).
			gt("timestampMs", cutoffMs(since))

		result, err := s.engine.Search(r.Context(), engine.Query{
			Text:   q.Get("q"),
			Filter: fb.build(),
			Sort:   []string{"timestamp:desc"},
			Limit:  limit,
			Facets: []string{"project", "level"},
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		writeJSON(w, SearchResponse{
			TotalHits: result.TotalHits,
			Facets:    result.Facets,
			Hits:      result.Hits,
		})
	}
}

// ProjectsResponse is the shaped /projects response (spec.md §6).
type ProjectsResponse struct {
	TotalLogs     int64            `json:"totalLogs"`
	ByProject     map[string]int64 `json:"byProject"`
	ByLevel       map[string]int64 `json:"byLevel"`
	ByEnvironment map[string]int64 `json:"byEnvironment"`
}

// ProjectsHandler implements GET /projects.
func (s *Shaper) ProjectsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.engine.Search(r.Context(), engine.Query{
			Limit:  0,
			Facets: []string{"project", "level", "environment"},
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		writeJSON(w, ProjectsResponse{
			TotalLogs:     result.TotalHits,
			ByProject:     result.Facets["project"],
			ByLevel:       result.Facets["level"],
			ByEnvironment: result.Facets["environment"],
		})
	}
}

// TraceResponse is the shaped /trace/:id response (spec.md §6).
type TraceResponse struct {
	TraceID    string           `json:"traceId"`
	EventCount int              `json:"eventCount"`
	Projects   []string         `json:"projects"`
	Timeline   []map[string]any `json:"timeline"`
}

// TraceHandler implements GET /trace/:id.
func (s *Shaper) TraceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["id"]

		filter := newFilterBuilder().eq("traceId", traceID).build()
		result, err := s.engine.Search(r.Context(), engine.Query{
			Filter: filter,
			Sort:   []string{"timestamp:asc"},
			Limit:  500,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		projects := uniqueStrings(result.Hits, "project")

		writeJSON(w, TraceResponse{
			TraceID:    traceID,
			EventCount: len(result.Hits),
			Projects:   projects,
			Timeline:   result.Hits,
		})
	}
}

// ErrorsResponse is the shaped /errors response (spec.md §6).
type ErrorsResponse struct {
	TotalErrors  int64            `json:"totalErrors"`
	ByProject    map[string]int64 `json:"byProject"`
	RecentErrors []map[string]any `json:"recentErrors"`
}

// ErrorsHandler implements GET /errors.
func (s *Shaper) ErrorsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		since, err := parseSince(q.Get("since"), time.Hour)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		fb := newFilterBuilder().
			eq("project", q.Get("project")).
			or("level", "error", "fatal").
			gt("timestampMs", cutoffMs(since))

		result, err := s.engine.Search(r.Context(), engine.Query{
			Text:   q.Get("q"),
			Filter: fb.build(),
			Sort:   []string{"timestamp:desc"},
			Limit:  30,
			Facets: []string{"project"},
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		writeJSON(w, ErrorsResponse{
			TotalErrors:  result.TotalHits,
			ByProject:    result.Facets["project"],
			RecentErrors: result.Hits,
		})
	}
}

// HealthHandler implements GET /health.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func cutoffMs(since time.Duration) int64 {
	return time.Now().Add(-since).UnixMilli()
}

func uniqueStrings(hits []map[string]any, field string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, h := range hits {
		v, ok := h[field].(string)
		if !ok || v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
