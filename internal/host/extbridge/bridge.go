// Package extbridge exposes a companion browser extension as a
// host.Source over one websocket. Commands to the extension carry
// correlation ids and block on the matching response; unsolicited
// "tab.*" messages become lifecycle events.
package extbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
)

// callTimeout bounds one command round trip. A wedged extension must
// not stall the engine's schedulers.
const callTimeout = 10 * time.Second

// Bridge holds at most one extension connection. A new connection
// replaces the old one; commands sent while disconnected fail with
// host.ErrNotConnected.
type Bridge struct {
	log pslog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan incomingMsg
	closed  bool

	events chan host.Event
}

// New constructs a Bridge. Mount Handler on the /host endpoint to
// accept the extension.
func New(logger pslog.Logger) *Bridge {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bridge{
		log:     logger,
		pending: make(map[string]chan incomingMsg),
		events:  make(chan host.Event, 256),
	}
}

// Connected reports whether an extension is currently attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Events returns the lifecycle event stream. It closes on Shutdown.
func (b *Bridge) Events() <-chan host.Event {
	return b.events
}

// Shutdown drops the current connection, fails every in-flight command
// and closes the event stream. Idempotent.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.conn != nil {
		b.conn.CloseNow()
		b.conn = nil
	}
	b.failPendingLocked()
	close(b.events)
	b.mu.Unlock()
}

// Handler returns the http.Handler that accepts the extension's
// websocket upgrade and runs its read loop.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			b.log.Warn("bridge accept failed", "err", err)
			return
		}

		conn.SetReadLimit(16 << 20) // snapshots with many tabs can be large

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			conn.CloseNow()
			return
		}
		if b.conn != nil {
			b.log.Info("bridge connection replaced")
			b.conn.CloseNow()
		}
		b.conn = conn
		b.mu.Unlock()

		b.log.Info("extension connected", "remote", r.RemoteAddr)
		b.readLoop(r.Context(), conn)

		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
			// In-flight commands on this connection can never be
			// answered now.
			b.failPendingLocked()
		}
		b.mu.Unlock()
		conn.CloseNow()
		b.log.Info("extension disconnected")
	})
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg incomingMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Warn("bridge message unreadable", "err", err)
			continue
		}
		if msg.ID != "" {
			b.resolve(msg)
			continue
		}
		ev, err := parseEvent(msg)
		if err != nil {
			b.log.Warn("bridge event unreadable", "type", msg.Type, "err", err)
			continue
		}
		b.emit(ev)
	}
}

// resolve routes a command response to its waiting caller. A response
// nobody waits for anymore is dropped.
func (b *Bridge) resolve(msg incomingMsg) {
	b.mu.Lock()
	ch, ok := b.pending[msg.ID]
	if ok {
		delete(b.pending, msg.ID)
	}
	b.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (b *Bridge) emit(ev host.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- ev:
	default:
		b.log.Warn("lifecycle event dropped, pipeline backlogged", "kind", ev.Kind.String())
	}
}

func (b *Bridge) failPendingLocked() {
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

// roundTrip sends one command and blocks for its response. The pending
// channel is buffered so a response racing the timeout never blocks
// the read loop.
func (b *Bridge) roundTrip(ctx context.Context, cmd outgoingCmd) (incomingMsg, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return incomingMsg{}, host.ErrNotConnected
	}
	cmd.ID = uuid.NewString()
	ch := make(chan incomingMsg, 1)
	b.pending[cmd.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, cmd.ID)
		b.mu.Unlock()
	}()

	data, err := json.Marshal(cmd)
	if err != nil {
		return incomingMsg{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return incomingMsg{}, fmt.Errorf("bridge %s: %w", cmd.Action, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return incomingMsg{}, host.ErrNotConnected
		}
		if resp.OK != nil && !*resp.OK {
			return incomingMsg{}, respError(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return incomingMsg{}, fmt.Errorf("bridge %s: %w", cmd.Action, ctx.Err())
	}
}
