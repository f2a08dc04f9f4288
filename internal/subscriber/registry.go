// Package subscriber implements the live broadcaster (spec.md §4.D): a
// process-wide registry of live WebSocket subscribers, each with a filter
// predicate and a bounded delivery buffer, fed synchronously and
// non-blockingly from the ingest pipeline.
//
// Grounded on friggdb/pool/pool.go's channel-based, non-blocking
// "select/default" send idiom, and on the Design Notes' instruction to
// resolve the registry/socket cyclic reference with an opaque integer
// handle: the registry never holds a reference to the socket, only to a
// byte-frame channel the socket's own writer goroutine drains.
package subscriber

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/logdock/logdock/internal/logrecord"
)

// BufferCapacity is B from spec.md §3/§4.D.
const BufferCapacity = 256

// DropThreshold is the number of lost frames after which a subscriber is
// forcibly closed for being irrecoverably slow (spec.md §4.D).
const DropThreshold = 1024

var (
	metricSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "logdock",
		Subsystem: "subscriber",
		Name:      "active",
		Help:      "Number of currently registered live subscribers.",
	})
	metricDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logdock",
		Subsystem: "subscriber",
		Name:      "delivered_total",
		Help:      "Records successfully enqueued for delivery to a subscriber.",
	})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logdock",
		Subsystem: "subscriber",
		Name:      "dropped_total",
		Help:      "Records dropped from a subscriber's buffer due to overflow.",
	})
	metricClosedSlow = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logdock",
		Subsystem: "subscriber",
		Name:      "closed_slow_total",
		Help:      "Subscribers forcibly closed for exceeding the drop threshold.",
	})
)

type entry struct {
	filter  Filter
	frames  chan []byte
	dropped atomic.Uint64
	mu      sync.Mutex // guards ring-buffer drop-oldest semantics on frames
	closed  atomic.Bool
}

// Registry is the process-wide subscriber table.
type Registry struct {
	mu      sync.RWMutex
	nextID  atomic.Uint64
	entries map[uint64]*entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint64]*entry)}
}

// Register allocates a bounded delivery buffer for a new subscriber and
// returns its handle id and the channel its writer goroutine should drain.
func (r *Registry) Register(filter Filter) (id uint64, frames <-chan []byte) {
	e := &entry{
		filter: filter,
		frames: make(chan []byte, BufferCapacity),
	}

	newID := r.nextID.Add(1)

	r.mu.Lock()
	r.entries[newID] = e
	r.mu.Unlock()

	metricSubscribers.Inc()
	return newID, e.frames
}

// Deregister removes and closes the subscriber's buffer. Safe to call more
// than once for the same id.
func (r *Registry) Deregister(id uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	closeEntry(e)
	metricSubscribers.Dec()
}

// Publish fans a normalized record out to every matching subscriber,
// non-blockingly. It is safe to call concurrently with Register/Deregister
// and with other Publish calls; the read lock is held only long enough to
// snapshot matching entries, never across the actual channel sends.
func (r *Registry) Publish(rec *logrecord.Record) {
	r.mu.RLock()
	matches := make([]*entry, 0, len(r.entries))
	ids := make([]uint64, 0, len(r.entries))
	for id, e := range r.entries {
		if e.filter.Match(rec) {
			matches = append(matches, e)
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	if len(matches) == 0 {
		return
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return
	}

	for i, e := range matches {
		if r.deliver(e, encoded) {
			continue
		}
		r.closeSlowSubscriber(ids[i])
	}
}

// deliver enqueues encoded onto e.frames, dropping the oldest queued frame
// on overflow. It returns false if the subscriber just crossed
// DropThreshold and should be forcibly closed.
func (r *Registry) deliver(e *entry, encoded []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return true
	}

	select {
	case e.frames <- encoded:
		metricDelivered.Inc()
		return true
	default:
	}

	// Buffer full: drop the oldest pending frame, then enqueue the new one.
	select {
	case <-e.frames:
		metricDropped.Inc()
		if e.dropped.Add(1) > DropThreshold {
			return false
		}
	default:
	}

	select {
	case e.frames <- encoded:
	default:
		// Lost a race with the drain side; nothing more we can do
		// non-blockingly, count it as dropped too.
		metricDropped.Inc()
		e.dropped.Add(1)
	}

	return true
}

func (r *Registry) closeSlowSubscriber(id uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	closeEntry(e)
	metricSubscribers.Dec()
	metricClosedSlow.Inc()
}

// closeEntry marks the entry closed and closes its channel. It takes the
// same per-entry mutex deliver uses around channel sends, so a send can
// never race a close and panic on a closed channel.
func closeEntry(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.CompareAndSwap(false, true) {
		close(e.frames)
	}
}
