package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/logdock/logdock/internal/engine"
	"github.com/logdock/logdock/internal/logrecord"
)

type fakeEngine struct {
	lastQuery engine.Query
	result    *engine.Result
	err       error
}

func (f *fakeEngine) EnsureIndex(context.Context) error                         { return nil }
func (f *fakeEngine) UpsertDocuments(context.Context, []*logrecord.Record) error { return nil }
func (f *fakeEngine) DeleteByFilter(context.Context, string) error               { return nil }

func (f *fakeEngine) Search(_ context.Context, q engine.Query) (*engine.Result, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &engine.Result{}, nil
}

func TestSearchHandler_ClampsLimitAndRejectsBadSince(t *testing.T) {
	fe := &fakeEngine{}
	s := &Shaper{engine: fe}

	req := httptest.NewRequest(http.MethodGet, "/search?limit=9999&since=banana", nil)
	w := httptest.NewRecorder()
	s.SearchHandler()(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/search?limit=9999", nil)
	w = httptest.NewRecorder()
	s.SearchHandler()(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(100), fe.lastQuery.Limit)
	require.Equal(t, []string{"timestamp:desc"}, fe.lastQuery.Sort)
}

func TestErrorsHandler_FiltersErrorAndFatal(t *testing.T) {
	fe := &fakeEngine{}
	s := &Shaper{engine: fe}

	req := httptest.NewRequest(http.MethodGet, "/errors", nil)
	w := httptest.NewRecorder()
	s.ErrorsHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, fe.lastQuery.Filter, `(level = "error" OR level = "fatal")`)
	require.EqualValues(t, 30, fe.lastQuery.Limit)
}

func TestTraceHandler_BuildsTimeline(t *testing.T) {
	fe := &fakeEngine{
		result: &engine.Result{
			Hits: []map[string]any{
				{"project": "svcA", "traceId": "T"},
				{"project": "svcB", "traceId": "T"},
			},
		},
	}
	s := &Shaper{engine: fe}

	router := mux.NewRouter()
	router.HandleFunc("/trace/{id}", s.TraceHandler())

	req := httptest.NewRequest(http.MethodGet, "/trace/T", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp TraceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "T", resp.TraceID)
	require.Equal(t, 2, resp.EventCount)
	require.ElementsMatch(t, []string{"svcA", "svcB"}, resp.Projects)
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
