package ingest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"

	"github.com/logdock/logdock/internal/logging"
	"github.com/logdock/logdock/internal/logrecord"
	"github.com/logdock/logdock/internal/subscriber"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WSHandler implements GET /ws (spec.md §6). The query string's mode
// parameter dispatches to ingest (default) or subscribe.
func (p *Pipeline) WSHandler(registry *subscriber.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			level.Warn(logging.Logger).Log("msg", "ws upgrade failed", "err", err)
			return
		}

		if r.URL.Query().Get("mode") == "subscribe" {
			p.runSubscribeSession(conn, registry, parseFilter(r))
			return
		}

		p.runIngestSession(conn)
	}
}

// runIngestSession reads frames from the client and treats each as an
// /ingest body (spec.md §4.F default mode): the session never closes on a
// malformed frame, only on a read/close error.
func (p *Pipeline) runIngestSession(conn *websocket.Conn) {
	defer conn.Close()

	norm := logrecord.NewNormalizer()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPings := startPinger(conn)
	defer stopPings()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if _, ierr := p.Ingest(context.Background(), norm, data); ierr != nil {
			level.Warn(logging.Logger).Log("msg", "dropping malformed ws ingest frame", "err", ierr)
			continue
		}
	}
}

// runSubscribeSession never reads application frames from the client
// (pings only); it drains the registry-issued channel and writes one text
// frame per matching record (spec.md §4.D).
func (p *Pipeline) runSubscribeSession(conn *websocket.Conn, registry *subscriber.Registry, filter subscriber.Filter) {
	defer conn.Close()

	id, frames := registry.Register(filter)
	defer registry.Deregister(id)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Drain and discard anything the client sends (pings/close frames
	// only, per spec.md) so the read side notices a close promptly.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stopPings := startPinger(conn)
	defer stopPings()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// startPinger sends periodic pings on a goroutine of its own. It uses
// WriteControl rather than SetWriteDeadline+WriteMessage because
// WriteControl is the one gorilla/websocket write path safe to call
// concurrently with another goroutine's WriteMessage calls on the same
// conn (the library's contract otherwise allows only one writer goroutine
// at a time) — runSubscribeSession's main loop is writing text frames on
// its own goroutine at the same time this one is pinging.
func startPinger(conn *websocket.Conn) (stop func()) {
	ticker := time.NewTicker(pingInterval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// parseFilter builds a subscriber.Filter from the subscribe query string
// (spec.md §6: projects, levels, traceId, environment).
func parseFilter(r *http.Request) subscriber.Filter {
	q := r.URL.Query()

	var filter subscriber.Filter
	if projects := q.Get("projects"); projects != "" {
		filter.Projects = toSet(strings.Split(projects, ","))
	}
	if levels := q.Get("levels"); levels != "" {
		filter.Levels = toLevelSet(strings.Split(levels, ","))
	}
	filter.TraceID = q.Get("traceId")
	filter.Environment = q.Get("environment")

	return filter
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toLevelSet(values []string) map[logrecord.Level]struct{} {
	out := make(map[logrecord.Level]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[logrecord.Level(v)] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
