// Package channel owns the process-wide persistent push connection. One
// websocket is shared by every stream instance; subscriptions are
// reference-counted so one view's teardown never severs a channel another
// view still needs.
package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/usecase"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
	heartbeatInterval = 30 * time.Second
	dialTimeout       = 10 * time.Second
)

// Websocket implements the channel contract over one gorilla/websocket
// connection. Transport loss is retried with exponential backoff; consumers
// only observe a gap in event delivery, which the reconciliation layer
// absorbs.
type Websocket struct {
	url    string
	header http.Header

	// wmu serializes outbound frames. gorilla/websocket supports at most one
	// concurrent writer per connection.
	wmu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	started  bool
	closed   bool
	handlers map[string]func(json.RawMessage)
	joined   map[string]int
	cancel   context.CancelFunc
}

// New builds a channel for the given websocket endpoint. The access token is
// passed through as an opaque bearer header when non-empty.
func New(socketURL, accessToken string) *Websocket {
	header := http.Header{}
	if accessToken != "" {
		header.Set("Authorization", "Bearer "+accessToken)
	}
	return &Websocket{
		url:      socketURL,
		header:   header,
		handlers: make(map[string]func(json.RawMessage)),
		joined:   make(map[string]int),
	}
}

// Connect establishes the connection for the process lifetime. Repeated calls
// reuse the existing connection.
func (w *Websocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.started && !w.closed {
		w.mu.Unlock()
		return nil
	}
	if w.closed {
		w.mu.Unlock()
		return errors.New("channel is closed")
	}
	w.started = true
	w.mu.Unlock()

	conn, err := w.dial(ctx)
	if err != nil {
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return errors.Wrap(err, "dial websocket")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Lock()
	w.conn = conn
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(runCtx, conn)
	return nil
}

func (w *Websocket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.url, w.header)
	return conn, err
}

// run owns the read loop and the reconnect cycle for the channel lifetime.
func (w *Websocket) run(ctx context.Context, conn *websocket.Conn) {
	w.rejoin()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				w.writeFrame(hub.Frame{Event: "h"})
			}
		}
	}()

	delay := minReconnectDelay
	for {
		err := w.readLoop(conn)
		if ctx.Err() != nil {
			return
		}
		slog.Debug("websocket read loop ended, reconnecting",
			slog.String("error", err.Error()),
			slog.String("module", "channel"),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			next, dialErr := w.dial(ctx)
			if dialErr == nil {
				conn = next
				delay = minReconnectDelay
				break
			}
			slog.Debug("websocket redial failed",
				slog.String("error", dialErr.Error()),
				slog.String("module", "channel"),
			)
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		}

		w.mu.Lock()
		w.conn = conn
		w.mu.Unlock()
		w.rejoin()
	}
}

func (w *Websocket) readLoop(conn *websocket.Conn) error {
	for {
		var frame hub.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("websocket closed unexpectedly",
					slog.String("error", err.Error()),
					slog.String("module", "channel"),
				)
			}
			return err
		}

		w.mu.Lock()
		handler := w.handlers[frame.Event]
		w.mu.Unlock()
		if handler == nil {
			continue
		}
		handler(frame.Payload)
	}
}

// rejoin replays channel membership after (re)connection: one join event per
// identity with live interest, so a reconnect is invisible to subscribers.
// It writes through writeFrame so join replay shares the writer lock with
// Send and the heartbeat.
func (w *Websocket) rejoin() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.joined))
	for id, refs := range w.joined {
		if refs > 0 {
			ids = append(ids, id)
		}
	}
	w.mu.Unlock()

	for _, id := range ids {
		if err := w.writeFrame(hub.NewFrame(hub.EventJoin, hub.JoinPayload{IdentityID: id})); err != nil {
			slog.Error("join replay failed",
				slog.String("identity", id),
				slog.String("error", err.Error()),
				slog.String("module", "channel"),
			)
			return
		}
	}
}

// Join registers interest in events for the identity. Duplicate joins are
// idempotent: the wire event is sent only on the first reference.
func (w *Websocket) Join(identityID string) error {
	w.mu.Lock()
	w.joined[identityID]++
	first := w.joined[identityID] == 1
	w.mu.Unlock()

	if !first {
		return nil
	}
	return w.writeFrame(hub.NewFrame(hub.EventJoin, hub.JoinPayload{IdentityID: identityID}))
}

// Leave drops one reference. Interest ends when the last reference is gone;
// the server prunes the membership on disconnect, so no wire event is needed.
func (w *Websocket) Leave(identityID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.joined[identityID] > 0 {
		w.joined[identityID]--
	}
	if w.joined[identityID] == 0 {
		delete(w.joined, identityID)
	}
}

// Send transmits an event. There is no delivery acknowledgment at this layer;
// confirmation, if any, is application-level.
func (w *Websocket) Send(event string, payload any) error {
	return w.writeFrame(hub.NewFrame(event, payload))
}

func (w *Websocket) writeFrame(frame hub.Frame) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return errors.New("channel not connected")
	}

	w.wmu.Lock()
	defer w.wmu.Unlock()
	return conn.WriteJSON(frame)
}

// On registers the handler for an event, replacing any previous one. Handlers
// run as events arrive, with no ordering guarantee relative to in-flight
// request/response calls.
func (w *Websocket) On(event string, handler func(json.RawMessage)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = handler
}

// Off deregisters the handler for an event.
func (w *Websocket) Off(event string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.handlers, event)
}

// Close tears the connection down for good.
func (w *Websocket) Close() {
	w.mu.Lock()
	w.closed = true
	cancel := w.cancel
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

var _ usecase.Channel = (*Websocket)(nil)
