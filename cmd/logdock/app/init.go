package app

import (
	"context"
	"fmt"

	"github.com/logdock/logdock/internal/engine"
)

// RunInit creates (or verifies) the search engine index and its
// searchable/filterable/sortable attribute lists (spec.md §4.H "init"
// command). It returns nil on success and a non-nil error otherwise, so
// the caller can map it to an exit code.
func RunInit(cfg Config) error {
	eng := engine.New(engine.Config{Host: cfg.MeiliHost, Key: cfg.MeiliKey})
	if err := eng.EnsureIndex(context.Background()); err != nil {
		return fmt.Errorf("failed to ensure index: %w", err)
	}
	return nil
}

// RunGC deletes every document older than the given retention filter
// expression from the search engine (SPEC_FULL.md's resolution of the
// retention Open Question: a CLI-only `logdock gc --since=<duration>`,
// not an HTTP endpoint, since retention is an operational action rather
// than a request any of this gateway's clients should be able to trigger).
func RunGC(cfg Config, filter string) error {
	eng := engine.New(engine.Config{Host: cfg.MeiliHost, Key: cfg.MeiliKey})
	if err := eng.DeleteByFilter(context.Background(), filter); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}
