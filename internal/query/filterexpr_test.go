package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilterBuilder_EscapesQuotes(t *testing.T) {
	fb := newFilterBuilder().eq("project", `a"b`)
	require.Equal(t, `project = "a\"b"`, fb.build())
}

func TestFilterBuilder_SkipsEmptyValues(t *testing.T) {
	fb := newFilterBuilder().eq("project", "").eq("level", "error")
	require.Equal(t, `level = "error"`, fb.build())
}

func TestFilterBuilder_AndsMultipleClauses(t *testing.T) {
	fb := newFilterBuilder().eq("project", "api").eq("level", "error")
	require.Equal(t, `project = "api" AND level = "error"`, fb.build())
}

func TestFilterBuilder_OrDisjunction(t *testing.T) {
	fb := newFilterBuilder().or("level", "error", "fatal")
	require.Equal(t, `(level = "error" OR level = "fatal")`, fb.build())
}

func TestParseSince_ValidUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for in, want := range cases {
		got, err := parseSince(in, time.Hour)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseSince_EmptyUsesDefault(t *testing.T) {
	got, err := parseSince("", 42*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 42*time.Minute, got)
}

func TestParseSince_InvalidErrors(t *testing.T) {
	_, err := parseSince("banana", time.Hour)
	require.Error(t, err)

	_, err = parseSince("5x", time.Hour)
	require.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	got, err := clampLimit("", 20, 100)
	require.NoError(t, err)
	require.Equal(t, int64(20), got)

	got, err = clampLimit("500", 20, 100)
	require.NoError(t, err)
	require.Equal(t, int64(100), got)

	got, err = clampLimit("-5", 20, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)

	_, err = clampLimit("nope", 20, 100)
	require.Error(t, err)
}
