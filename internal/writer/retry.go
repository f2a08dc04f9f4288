package writer

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"

	"github.com/logdock/logdock/internal/engine"
	"github.com/logdock/logdock/internal/logging"
	"github.com/logdock/logdock/internal/logrecord"
)

// retryConfig mirrors spec.md §4.C: exponential backoff with jitter,
// capped at ~10s and ~5 attempts.
var retryConfig = backoff.Config{
	MinBackoff: 100 * time.Millisecond,
	MaxBackoff: 10 * time.Second,
	MaxRetries: 5,
}

// flush pushes one batch to the engine, retrying transient failures with
// bounded backoff. A permanent (4xx) engine error drops the batch
// immediately without consuming a retry, per spec.md §7 (EnginePermanent
// does not retry).
func (w *Writer) flush(ctx context.Context, batch []*logrecord.Record) {
	b := backoff.New(ctx, retryConfig)

	var lastErr error
	for b.Ongoing() {
		err := w.engine.UpsertDocuments(ctx, batch)
		if err == nil {
			metricBatchesFlushed.Inc()
			metricRecordsWritten.Add(float64(len(batch)))
			return
		}
		lastErr = err

		var engErr *engine.EngineError
		if errors.As(err, &engErr) && !engErr.Transient() {
			level.Error(logging.Logger).Log(
				"msg", "dropping batch after permanent engine error",
				"batch_size", len(batch), "err", err,
			)
			metricBatchesDropped.WithLabelValues("permanent").Inc()
			return
		}

		level.Warn(logging.Logger).Log(
			"msg", "engine upsert failed, retrying",
			"batch_size", len(batch), "attempt", b.NumRetries(), "err", err,
		)
		b.Wait()
	}

	if lastErr != nil {
		level.Error(logging.Logger).Log(
			"msg", "dropping batch after exhausting retries",
			"batch_size", len(batch), "attempts", b.NumRetries(), "err", lastErr,
		)
		metricBatchesDropped.WithLabelValues("retries_exhausted").Inc()
	}
}
