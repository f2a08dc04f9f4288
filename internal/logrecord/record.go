// Package logrecord defines the canonical log record and the normalization
// that every inbound record passes through before it is broadcast or
// persisted.
package logrecord

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Level is one of the five enumerated log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

func validLevel(l Level) bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

const defaultEnvironment = "dev"

// Record is the canonical inbound/outbound log unit (spec §3).
type Record struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	TimestampMs  int64          `json:"timestampMs"`
	Project      string         `json:"project"`
	Level        Level          `json:"level"`
	Message      string         `json:"message"`
	TraceID      string         `json:"traceId,omitempty"`
	SpanID       string         `json:"spanId,omitempty"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	Source       string         `json:"source,omitempty"`
	Environment  string         `json:"environment,omitempty"`
}

// raw mirrors Record but leaves TimestampMs/Level as loosely-typed fields
// so we can tell "absent" apart from "zero value" during decode.
type raw struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	TimestampMs  *int64         `json:"timestampMs"`
	Project      string         `json:"project"`
	Level        string         `json:"level"`
	Message      string         `json:"message"`
	TraceID      string         `json:"traceId"`
	SpanID       string         `json:"spanId"`
	ParentSpanID string         `json:"parentSpanId"`
	Meta         map[string]any `json:"meta"`
	Source       string         `json:"source"`
	Environment  string         `json:"environment"`
}

// Normalizer turns decoded JSON into validated Records. One Normalizer is
// owned per ingest goroutine (an HTTP request or a WS session) so its ulid
// entropy source never needs a lock on the hot path (SPEC_FULL.md OQ-1).
type Normalizer struct {
	entropy *ulid.MonotonicEntropy
}

// NewNormalizer constructs a Normalizer with a fresh monotonic entropy
// source seeded from the current time.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Normalize validates and fills in a single decoded record, per spec §4.A.
// It never mutates data in place; errs are returned for the caller to collect
// into a per-batch rejection list without aborting sibling records.
func (n *Normalizer) Normalize(data []byte) (*Record, error) {
	var in raw
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("malformed record: %w", err)
	}
	return n.normalizeRaw(&in)
}

func (n *Normalizer) normalizeRaw(in *raw) (*Record, error) {
	if strings.TrimSpace(in.Project) == "" {
		return nil, fmt.Errorf("missing project")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("missing message")
	}

	level := Level(strings.ToLower(strings.TrimSpace(in.Level)))
	if level == "" {
		return nil, fmt.Errorf("missing level")
	}
	if !validLevel(level) {
		return nil, fmt.Errorf("invalid level")
	}

	out := &Record{
		ID:           in.ID,
		Project:      in.Project,
		Level:        level,
		Message:      in.Message,
		TraceID:      in.TraceID,
		SpanID:       in.SpanID,
		ParentSpanID: in.ParentSpanID,
		Meta:         in.Meta,
		Source:       in.Source,
		Environment:  in.Environment,
	}

	if out.ID == "" {
		out.ID = n.nextID()
	}

	if err := n.normalizeTimestamps(out, in); err != nil {
		return nil, err
	}

	if out.Environment == "" {
		out.Environment = defaultEnvironment
	}

	return out, nil
}

func (n *Normalizer) nextID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), n.entropy).String()
}

func (n *Normalizer) normalizeTimestamps(out *Record, in *raw) error {
	now := time.Now().UTC()

	switch {
	case in.TimestampMs != nil:
		out.TimestampMs = *in.TimestampMs
	case in.Timestamp != "":
		ts, err := parseTimestamp(in.Timestamp)
		if err != nil {
			out.TimestampMs = now.UnixMilli()
		} else {
			out.TimestampMs = ts.UnixMilli()
		}
	default:
		out.TimestampMs = now.UnixMilli()
	}
	out.Timestamp = time.UnixMilli(out.TimestampMs).UTC().Format(time.RFC3339Nano)

	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
