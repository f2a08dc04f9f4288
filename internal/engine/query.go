package engine

import (
	"context"

	"github.com/meilisearch/meilisearch-go"
)

// Query is the engine-facing search request the query/shape layer (§4.G)
// builds from REST query parameters.
type Query struct {
	Text          string
	Filter        string
	Sort          []string
	Limit         int64
	Facets        []string
	RetrieveAttrs []string
}

// Result is the engine's raw response, shaped further by internal/query.
type Result struct {
	TotalHits int64
	Hits      []map[string]any
	Facets    map[string]map[string]int64
}

// Search runs a full-text query with filters, sort, and facet distribution
// (spec.md §4.B).
func (c *client) Search(_ context.Context, q Query) (*Result, error) {
	idx := c.sm.Index(indexUID)

	req := &meilisearch.SearchRequest{
		Limit: q.Limit,
	}
	if q.Filter != "" {
		req.Filter = q.Filter
	}
	if len(q.Sort) > 0 {
		req.Sort = q.Sort
	}
	if len(q.Facets) > 0 {
		req.Facets = q.Facets
	}
	if len(q.RetrieveAttrs) > 0 {
		req.AttributesToRetrieve = q.RetrieveAttrs
	}

	resp, err := idx.Search(q.Text, req)
	if err != nil {
		return nil, classify(err)
	}

	hits := make([]map[string]any, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		if m, ok := h.(map[string]any); ok {
			hits = append(hits, m)
		}
	}

	facets := map[string]map[string]int64{}
	for attr, dist := range resp.FacetDistribution {
		inner := map[string]int64{}
		for value, count := range dist {
			inner[value] = int64(count)
		}
		facets[attr] = inner
	}

	return &Result{
		TotalHits: resp.EstimatedTotalHits,
		Hits:      hits,
		Facets:    facets,
	}, nil
}
