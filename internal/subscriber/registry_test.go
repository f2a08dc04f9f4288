package subscriber

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logdock/logdock/internal/logrecord"
)

func rec(t *testing.T, project string, level logrecord.Level) *logrecord.Record {
	t.Helper()
	n := logrecord.NewNormalizer()
	r, err := n.Normalize([]byte(`{"project":"` + project + `","level":"` + string(level) + `","message":"m"}`))
	require.NoError(t, err)
	return r
}

func TestRegistry_FilterMatchesConjunctively(t *testing.T) {
	reg := NewRegistry()
	filter := Filter{
		Projects: map[string]struct{}{"api": {}},
		Levels:   map[logrecord.Level]struct{}{logrecord.LevelError: {}},
	}
	_, frames := reg.Register(filter)

	reg.Publish(rec(t, "api", logrecord.LevelError))
	reg.Publish(rec(t, "api", logrecord.LevelInfo))
	reg.Publish(rec(t, "web", logrecord.LevelError))

	select {
	case frame := <-frames:
		var got logrecord.Record
		require.NoError(t, json.Unmarshal(frame, &got))
		require.Equal(t, "api", got.Project)
		require.Equal(t, logrecord.LevelError, got.Level)
	case <-time.After(time.Second):
		t.Fatal("expected one delivered frame")
	}

	select {
	case <-frames:
		t.Fatal("expected no further frames")
	default:
	}
}

func TestRegistry_AbsentFilterMatchesAll(t *testing.T) {
	reg := NewRegistry()
	_, frames := reg.Register(Filter{})

	reg.Publish(rec(t, "any", logrecord.LevelDebug))

	select {
	case <-frames:
	case <-time.After(time.Second):
		t.Fatal("expected delivery with empty filter")
	}
}

func TestRegistry_DeregisterClosesChannel(t *testing.T) {
	reg := NewRegistry()
	id, frames := reg.Register(Filter{})
	reg.Deregister(id)

	_, ok := <-frames
	require.False(t, ok)
}

func TestRegistry_OverflowDropsOldest(t *testing.T) {
	reg := NewRegistry()
	_, frames := reg.Register(Filter{})

	published := make([]*logrecord.Record, 0, BufferCapacity+10)
	for i := 0; i < BufferCapacity+10; i++ {
		r := rec(t, "p", logrecord.LevelInfo)
		published = append(published, r)
		reg.Publish(r)
	}

	count := 0
	var firstID string
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				goto done
			}
			if count == 0 {
				var got logrecord.Record
				require.NoError(t, json.Unmarshal(frame, &got))
				firstID = got.ID
			}
			count++
		default:
			goto done
		}
	}
done:
	require.LessOrEqual(t, count, BufferCapacity)
	// The ten oldest records made room for the ten newest.
	require.Equal(t, published[10].ID, firstID)
}

func TestRegistry_ClosesSlowSubscriberPastThreshold(t *testing.T) {
	reg := NewRegistry()
	id, frames := reg.Register(Filter{})

	total := BufferCapacity + DropThreshold + 10
	for i := 0; i < total; i++ {
		reg.Publish(rec(t, "p", logrecord.LevelInfo))
	}

	reg.mu.RLock()
	_, stillRegistered := reg.entries[id]
	reg.mu.RUnlock()
	require.False(t, stillRegistered)

	// draining frames should eventually observe the channel closed.
	closedEventually := false
	for i := 0; i < BufferCapacity+1; i++ {
		_, ok := <-frames
		if !ok {
			closedEventually = true
			break
		}
	}
	require.True(t, closedEventually)
}
