// Package ingest implements the single logical fan-in (spec.md §4.E) that
// feeds both the batch writer and the subscriber registry from HTTP POST
// and WebSocket sources: decode, normalize, broadcast, then persist.
package ingest

import (
	"context"

	"github.com/logdock/logdock/internal/logrecord"
	"github.com/logdock/logdock/internal/subscriber"
)

// ChannelCapacity is the bound on the ingest channel (spec.md §4.E): full
// HTTP handlers block on send (back-pressure), WS handlers rely on the
// socket's own receive-window backlog.
const ChannelCapacity = 4096

// IngestResult mirrors the /ingest response shape from spec.md §6.
type IngestResult struct {
	Accepted int                        `json:"accepted"`
	Rejected int                        `json:"rejected"`
	Errors   []logrecord.RejectedRecord `json:"errors,omitempty"`
}

// Pipeline is the shared fan-in: one buffered channel to the batch writer,
// and a synchronous broadcast to the subscriber registry preceding it.
type Pipeline struct {
	registry *subscriber.Registry
	out      chan *logrecord.Record
}

// New constructs a Pipeline. Channel returns the receive side for the
// batch writer to drain.
func New(registry *subscriber.Registry) *Pipeline {
	return &Pipeline{
		registry: registry,
		out:      make(chan *logrecord.Record, ChannelCapacity),
	}
}

// Channel returns the receive side of the ingest channel, for the batch
// writer to drain.
func (p *Pipeline) Channel() <-chan *logrecord.Record {
	return p.out
}

// Close signals no further records will be sent, letting the batch
// writer's drain-on-close shutdown path run.
func (p *Pipeline) Close() {
	close(p.out)
}

// Ingest normalizes one decoded batch body (a JSON object or array),
// broadcasts every accepted record to the subscriber registry, then sends
// it on the ingest channel. Broadcast strictly precedes the channel send
// (and therefore persistence) per spec.md §5 — a record is observed by
// subscribers before it is acknowledged as durable.
//
// ctx governs only the blocking channel send (HTTP back-pressure, spec.md
// §4.E); normalization and broadcast are always synchronous and
// non-cancellable, matching the "live broadcast precedes persistence"
// invariant regardless of how long the caller is willing to wait for the
// writer to catch up.
func (p *Pipeline) Ingest(ctx context.Context, norm *logrecord.Normalizer, body []byte) (IngestResult, error) {
	accepted, rejected, err := norm.DecodeBatch(body)
	if err != nil {
		return IngestResult{}, err
	}

	for _, rec := range accepted {
		p.registry.Publish(rec)
	}

	for _, rec := range accepted {
		select {
		case p.out <- rec:
		case <-ctx.Done():
			return IngestResult{
				Accepted: len(accepted),
				Rejected: len(rejected),
				Errors:   rejected,
			}, ctx.Err()
		}
	}

	return IngestResult{
		Accepted: len(accepted),
		Rejected: len(rejected),
		Errors:   rejected,
	}, nil
}
