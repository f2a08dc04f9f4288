// Package engine wraps the external full-text search engine (Meilisearch)
// behind the small surface spec.md §4.B names: ensure_index, upsert_documents,
// search, delete_by_filter. It is an out-of-pack dependency — see
// DESIGN.md — not grounded in the teacher or any example repo, because the
// spec's own configuration surface (--meili-host, MEILI_HOST, MEILI_KEY)
// names Meilisearch directly.
package engine

import (
	"context"
	"fmt"

	"github.com/meilisearch/meilisearch-go"

	"github.com/logdock/logdock/internal/logrecord"
)

const indexUID = "logs"

// Config configures the connection to the search engine.
type Config struct {
	Host string
	Key  string
}

// EngineError classifies a failure from the search engine so callers (the
// batch writer's retry loop, in particular) can branch on it without
// string-matching (spec.md §7: EngineTransient vs EnginePermanent).
type EngineError struct {
	Status int
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error (status %d): %v", e.Status, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Transient reports whether the error should be retried (network error or
// 5xx) as opposed to treated as permanent (4xx).
func (e *EngineError) Transient() bool {
	return e.Status == 0 || e.Status >= 500
}

// Client is the typed surface over the search engine.
type Client interface {
	EnsureIndex(ctx context.Context) error
	UpsertDocuments(ctx context.Context, records []*logrecord.Record) error
	Search(ctx context.Context, q Query) (*Result, error)
	DeleteByFilter(ctx context.Context, filter string) error
}

type client struct {
	sm meilisearch.ServiceManager
}

// New builds a Client bound to the given engine configuration.
func New(cfg Config) Client {
	sm := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.Key))
	return &client{sm: sm}
}

// EnsureIndex creates the logs index (if absent) and (re)applies the
// searchable/filterable/sortable attribute lists from spec.md §4.B. It is
// idempotent and safe to call repeatedly.
func (c *client) EnsureIndex(ctx context.Context) error {
	_, err := c.sm.Index(indexUID).FetchInfo()
	if err != nil {
		pk := "id"
		task, cerr := c.sm.CreateIndex(&meilisearch.IndexConfig{
			Uid:        indexUID,
			PrimaryKey: pk,
		})
		if cerr != nil {
			return classify(cerr)
		}
		if _, werr := c.sm.WaitForTask(task.TaskUID, 0); werr != nil {
			return classify(werr)
		}
	}

	idx := c.sm.Index(indexUID)

	searchable := []string{"message", "source", "meta", "project"}
	if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
		return classify(err)
	}

	filterable := []string{"project", "level", "environment", "traceId", "timestampMs"}
	if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
		return classify(err)
	}

	sortable := []string{"timestamp", "timestampMs"}
	if _, err := idx.UpdateSortableAttributes(&sortable); err != nil {
		return classify(err)
	}

	return nil
}

// UpsertDocuments persists one batch of normalized records. Records already
// carry their assigned id, so this is a genuine upsert keyed on it.
func (c *client) UpsertDocuments(ctx context.Context, records []*logrecord.Record) error {
	if len(records) == 0 {
		return nil
	}
	idx := c.sm.Index(indexUID)
	if _, err := idx.AddDocuments(records, "id"); err != nil {
		return classify(err)
	}
	return nil
}

// DeleteByFilter removes documents matching a Meilisearch filter
// expression. Used by retention helpers (spec.md §4.B, "optional").
func (c *client) DeleteByFilter(ctx context.Context, filter string) error {
	idx := c.sm.Index(indexUID)
	if _, err := idx.DeleteDocumentsByFilter(filter); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*meilisearch.Error); ok {
		return &EngineError{Status: apiErr.StatusCode, Err: err}
	}
	return &EngineError{Status: 0, Err: err}
}
