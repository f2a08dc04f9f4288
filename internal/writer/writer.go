// Package writer implements the batching writer (spec.md §4.C): it drains
// the ingest channel into size/time-bounded batches and pushes them to the
// search engine with retry and bounded backoff, never blocking broadcast
// and never losing an in-flight batch across a flush boundary.
//
// The single-owner-channel, swap-the-slice-and-keep-draining shape is
// grounded on friggdb/pool/pool.go's worker-pool idiom; the service
// start/stop lifecycle is grounded on cmd/tempo/app/server_service.go's
// NewServerService wrapping of a long-running component in a
// dskit/services.Service.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/logdock/logdock/internal/engine"
	"github.com/logdock/logdock/internal/logrecord"
)

const (
	// MaxBatchSize is the size trigger N from spec.md §4.C.
	MaxBatchSize = 200
	// MaxBatchAge is the time trigger T from spec.md §4.C.
	MaxBatchAge = 250 * time.Millisecond
	// DrainTimeout bounds how long shutdown waits for the channel to drain.
	DrainTimeout = 5 * time.Second
)

var (
	metricRecordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logdock",
		Subsystem: "writer",
		Name:      "records_written_total",
		Help:      "Records successfully upserted into the search engine.",
	})
	metricBatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logdock",
		Subsystem: "writer",
		Name:      "batches_flushed_total",
		Help:      "Batches successfully upserted into the search engine.",
	})
	metricBatchesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logdock",
		Subsystem: "writer",
		Name:      "batches_dropped_total",
		Help:      "Batches dropped after exhausting retries or hitting a permanent engine error.",
	}, []string{"reason"})
	metricPendingLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "logdock",
		Subsystem: "writer",
		Name:      "pending_length",
		Help:      "Number of records currently accumulated in the in-flight batch.",
	})
)

// Writer is the batch writer. It is driven by its own goroutine
// (Writer.run, started by the dskit service returned from NewService) and
// owns its pending slice exclusively.
type Writer struct {
	in     <-chan *logrecord.Record
	engine engine.Client

	mu         sync.Mutex
	pending    []*logrecord.Record
	inFlight   bool
	flushAgain bool
}

// New constructs a Writer draining in. The caller owns in and must close it
// (or stop sending) to let the writer's drain loop exit cleanly.
func New(in <-chan *logrecord.Record, eng engine.Client) *Writer {
	return &Writer{
		in:     in,
		engine: eng,
	}
}

// NewService wraps the Writer in a dskit/services.Service so the app can
// start/stop it alongside the HTTP server with a shared lifecycle.
func (w *Writer) NewService() services.Service {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	starting := func(context.Context) error { return nil }
	running := func(serviceCtx context.Context) error {
		go func() {
			defer close(done)
			w.run(ctx)
		}()

		select {
		case <-serviceCtx.Done():
			cancel()
			<-done
			return nil
		case <-done:
			return nil
		}
	}
	stopping := func(_ error) error {
		cancel()
		<-done
		return nil
	}

	return services.NewBasicService(starting, running, stopping)
}

// run is the single drain-side goroutine. It accumulates pending records
// and triggers a flush on size (MaxBatchSize) or age (MaxBatchAge),
// whichever comes first.
func (w *Writer) run(ctx context.Context) {
	timer := time.NewTimer(MaxBatchAge)
	defer timer.Stop()

	for {
		select {
		case rec, ok := <-w.in:
			if !ok {
				w.drainRemaining(ctx)
				return
			}
			w.append(rec, timer)

		case <-timer.C:
			w.triggerFlush(ctx)
			timer.Reset(MaxBatchAge)

		case <-ctx.Done():
			w.drainChannel()
			return
		}
	}
}

// drainChannel runs the shutdown path spec.md §4.C/§5 describes: stop
// waiting on new sends once w.in closes (the caller closed
// ingest.Pipeline, meaning no more records will ever arrive), or once
// DrainTimeout passes without that happening, then run the one final
// flush. This is what actually exercises the channel-close branch below,
// rather than leaving whatever is still in flight on w.in to be dropped.
func (w *Writer) drainChannel() {
	deadline := time.NewTimer(DrainTimeout)
	defer deadline.Stop()

	for {
		select {
		case rec, ok := <-w.in:
			if !ok {
				w.drainRemaining(context.Background())
				return
			}
			w.mu.Lock()
			w.pending = append(w.pending, rec)
			w.mu.Unlock()

		case <-deadline.C:
			w.drainRemaining(context.Background())
			return
		}
	}
}

func (w *Writer) append(rec *logrecord.Record, timer *time.Timer) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		resetTimer(timer, MaxBatchAge)
	}
	w.pending = append(w.pending, rec)
	n := len(w.pending)
	metricPendingLength.Set(float64(n))
	w.mu.Unlock()

	if n >= MaxBatchSize {
		w.triggerFlush(context.Background())
	}
}

// triggerFlush hands the pending slice off to a flush, coalescing
// concurrent triggers: if a flush is already in-flight, it just marks
// flushAgain so the finishing flush re-checks pending before going idle.
func (w *Writer) triggerFlush(ctx context.Context) {
	w.mu.Lock()
	if w.inFlight {
		w.flushAgain = true
		w.mu.Unlock()
		return
	}
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = nil
	w.inFlight = true
	metricPendingLength.Set(0)
	w.mu.Unlock()

	go w.flushAndMaybeAgain(ctx, batch)
}

func (w *Writer) flushAndMaybeAgain(ctx context.Context, batch []*logrecord.Record) {
	w.flush(ctx, batch)

	w.mu.Lock()
	w.inFlight = false
	again := w.flushAgain
	w.flushAgain = false
	w.mu.Unlock()

	if again {
		w.triggerFlush(ctx)
	}
}

// drainRemaining is called on shutdown: it stops accepting new sends
// (the channel is already closed/exhausted by the caller) and executes one
// final bounded flush.
func (w *Writer) drainRemaining(_ context.Context) {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()
	w.flush(ctx, batch)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
