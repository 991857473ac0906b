// Package wssink streams diagnostic trace envelopes to connected dashboard
// clients over WebSocket.
//
// The [Hub] is both a [diag.Sink] and an [http.Handler]: mount it on the
// diagnostics endpoint and every connected client receives each turn's
// envelope as a JSON text message. Delivery is best-effort — a slow client's
// buffer fills and messages are dropped rather than stalling the routing path.
package wssink

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/openclerk/switchboard/internal/diag"
)

const (
	// subscriberBuf is the per-client buffered message depth.
	subscriberBuf = 64

	// writeTimeout bounds a single WebSocket write.
	writeTimeout = 5 * time.Second
)

// wireEnvelope is the JSON shape sent to clients.
type wireEnvelope struct {
	CallID    string       `json:"call_id"`
	TurnIndex int          `json:"turn_index"`
	Dropped   int          `json:"dropped,omitempty"`
	Events    []diag.Event `json:"events"`
}

// Hub broadcasts envelopes to all connected WebSocket subscribers.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// Compile-time interface checks.
var (
	_ diag.Sink    = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// NewHub creates a Hub. logger may be nil, in which case slog.Default is used.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[chan []byte]struct{}),
	}
}

// Emit implements [diag.Sink]. The envelope is marshalled once and queued to
// every subscriber; subscribers whose buffer is full miss this envelope.
func (h *Hub) Emit(_ context.Context, envelope *diag.Envelope) {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	msg, err := json.Marshal(wireEnvelope{
		CallID:    envelope.CallID,
		TurnIndex: envelope.TurnIndex,
		Dropped:   envelope.Dropped(),
		Events:    envelope.Events(),
	})
	if err != nil {
		h.logger.Warn("trace stream: marshal envelope", "error", err)
		return
	}

	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			// Slow client: drop this envelope for it.
		}
	}
	h.mu.Unlock()
}

// Subscribers returns the current number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP implements [http.Handler]. It upgrades the request to a WebSocket
// connection and streams envelopes until the client disconnects or the request
// context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("trace stream: accept", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ch := make(chan []byte, subscriberBuf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
