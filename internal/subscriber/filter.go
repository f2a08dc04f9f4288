package subscriber

import "github.com/logdock/logdock/internal/logrecord"

// Filter is a conjunction of optional constraints (spec.md §4.D). It is a
// plain struct evaluated directly, not a dynamic-dispatch table, per
// SPEC_FULL.md's Design Notes ("avoid any dynamic-dispatch table for this
// hot path").
type Filter struct {
	Projects    map[string]struct{}
	Levels      map[logrecord.Level]struct{}
	TraceID     string
	Environment string
}

// Match reports whether rec satisfies every configured component of the
// filter. Absent components match everything; present ones require an
// exact match (and a record missing the corresponding field never
// satisfies a filter that requires it).
func (f Filter) Match(rec *logrecord.Record) bool {
	if len(f.Projects) > 0 {
		if _, ok := f.Projects[rec.Project]; !ok {
			return false
		}
	}
	if len(f.Levels) > 0 {
		if _, ok := f.Levels[rec.Level]; !ok {
			return false
		}
	}
	if f.TraceID != "" && rec.TraceID != f.TraceID {
		return false
	}
	if f.Environment != "" && rec.Environment != f.Environment {
		return false
	}
	return true
}
