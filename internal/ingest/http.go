package ingest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/logdock/logdock/internal/logrecord"
)

// HTTPHandler implements POST /ingest (spec.md §6): 200 with
// {accepted, rejected, errors?} whenever the top-level body is valid JSON,
// 400 only on a framing/parse failure.
func (p *Pipeline) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		norm := logrecord.NewNormalizer()
		result, err := p.Ingest(r.Context(), norm, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(result)
	}
}
