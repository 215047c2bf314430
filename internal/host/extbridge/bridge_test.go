package extbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

// ext plays the browser extension side of the socket.
type ext struct {
	conn *websocket.Conn
	ctx  context.Context
}

func newBridge(t *testing.T) (*Bridge, *httptest.Server) {
	t.Helper()
	b := New(nil)
	t.Cleanup(b.Shutdown)
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)
	return b, ts
}

func dial(t *testing.T, ts *httptest.Server) *ext {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return &ext{conn: conn, ctx: ctx}
}

func dialBridge(t *testing.T) (*Bridge, *ext) {
	t.Helper()
	b, ts := newBridge(t)
	c := dial(t, ts)

	deadline := time.Now().Add(2 * time.Second)
	for !b.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("bridge never registered the connection")
		}
		time.Sleep(2 * time.Millisecond)
	}
	return b, c
}

// readCmd receives one command from the bridge. Call from the test
// goroutine only.
func (c *ext) readCmd(t *testing.T) outgoingCmd {
	t.Helper()
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		t.Fatalf("extension read: %v", err)
	}
	var cmd outgoingCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		t.Fatalf("extension decode: %v", err)
	}
	if cmd.ID == "" {
		t.Fatal("command carries no correlation id")
	}
	return cmd
}

func (c *ext) writeRaw(t *testing.T, raw string) {
	t.Helper()
	if err := c.conn.Write(c.ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("extension write: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	b, c := dialBridge(t)

	type result struct {
		snap host.Snapshot
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		snap, err := b.Snapshot(context.Background())
		resCh <- result{snap, err}
	}()

	cmd := c.readCmd(t)
	if cmd.Action != "query-tabs" {
		t.Errorf("action = %q, want query-tabs", cmd.Action)
	}
	c.writeRaw(t, fmt.Sprintf(`{
		"id": %q, "ok": true, "windowId": 3,
		"tabs": [
			{"id": 1, "windowId": 3, "url": "https://a.com", "title": "A", "lastAccessed": 1700000000000, "groupId": 5},
			{"id": 2, "windowId": 3, "url": "https://b.com", "title": "B", "lastAccessed": 1700000060000, "groupId": -1, "discarded": true}
		],
		"groups": [{"id": 5, "title": "Work", "color": "blue"}]
	}`, cmd.ID))

	res := <-resCh
	if res.err != nil {
		t.Fatalf("Snapshot: %v", res.err)
	}
	if res.snap.CurrentWindowID != 3 {
		t.Errorf("CurrentWindowID = %d, want 3", res.snap.CurrentWindowID)
	}
	if len(res.snap.Tabs) != 2 {
		t.Fatalf("got %d tabs, want 2", len(res.snap.Tabs))
	}
	if res.snap.Tabs[0].State != types.StateBackground || res.snap.Tabs[0].GroupID != 5 {
		t.Errorf("tab 1 = %+v", res.snap.Tabs[0])
	}
	if res.snap.Tabs[1].State != types.StateDiscarded {
		t.Errorf("tab 2 state = %s, want discarded", res.snap.Tabs[1].State)
	}
	if len(res.snap.Groups) != 1 || res.snap.Groups[0].Title != "Work" {
		t.Errorf("groups = %+v", res.snap.Groups)
	}
}

func TestTabNoTabSentinel(t *testing.T) {
	b, c := dialBridge(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Tab(context.Background(), 42)
		errCh <- err
	}()

	cmd := c.readCmd(t)
	if cmd.Action != "query-tab" || cmd.TabID != 42 {
		t.Errorf("cmd = %+v, want query-tab 42", cmd)
	}
	c.writeRaw(t, fmt.Sprintf(`{"id": %q, "ok": false, "error": "no-tab"}`, cmd.ID))

	if err := <-errCh; !errors.Is(err, host.ErrNoTab) {
		t.Errorf("err = %v, want ErrNoTab", err)
	}
}

func TestResponsesRouteByID(t *testing.T) {
	b, c := dialBridge(t)

	type result struct {
		rec types.TabRecord
		err error
	}
	res1, res2 := make(chan result, 1), make(chan result, 1)
	go func() {
		rec, err := b.Tab(context.Background(), 1)
		res1 <- result{rec, err}
	}()
	go func() {
		rec, err := b.Tab(context.Background(), 2)
		res2 <- result{rec, err}
	}()

	cmdA := c.readCmd(t)
	cmdB := c.readCmd(t)
	if cmdA.ID == cmdB.ID {
		t.Fatal("two commands share one correlation id")
	}

	// Answer in reverse arrival order; each caller must still get the
	// tab it asked for.
	reply := `{"id": %q, "ok": true, "tab": {"id": %d, "windowId": 1, "url": "https://t%d.com", "groupId": -1}}`
	c.writeRaw(t, fmt.Sprintf(reply, cmdB.ID, cmdB.TabID, cmdB.TabID))
	c.writeRaw(t, fmt.Sprintf(reply, cmdA.ID, cmdA.TabID, cmdA.TabID))

	r1, r2 := <-res1, <-res2
	if r1.err != nil || r2.err != nil {
		t.Fatalf("errs = %v, %v", r1.err, r2.err)
	}
	if r1.rec.TabID != 1 || r1.rec.URL != "https://t1.com" {
		t.Errorf("call for tab 1 got %+v", r1.rec)
	}
	if r2.rec.TabID != 2 || r2.rec.URL != "https://t2.com" {
		t.Errorf("call for tab 2 got %+v", r2.rec)
	}
}

func TestCommandEncoding(t *testing.T) {
	b, c := dialBridge(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		call  func() error
		check func(cmd outgoingCmd) string
	}{
		{
			name: "activate",
			call: func() error { return b.Activate(ctx, 7) },
			check: func(cmd outgoingCmd) string {
				if cmd.Action != "activate-tab" || cmd.TabID != 7 {
					return fmt.Sprintf("got %s tab=%d", cmd.Action, cmd.TabID)
				}
				return ""
			},
		},
		{
			name: "close",
			call: func() error { return b.Close(ctx, 1, 2) },
			check: func(cmd outgoingCmd) string {
				if cmd.Action != "remove-tabs" || len(cmd.TabIDs) != 2 || cmd.TabIDs[0] != 1 {
					return fmt.Sprintf("got %s ids=%v", cmd.Action, cmd.TabIDs)
				}
				return ""
			},
		},
		{
			name: "create pinned",
			call: func() error {
				return b.Create(ctx, host.CreateOpts{URL: "https://x.com", Active: true, Pinned: true})
			},
			check: func(cmd outgoingCmd) string {
				if cmd.Action != "create-tab" || cmd.URL != "https://x.com" || !cmd.Active {
					return fmt.Sprintf("got %+v", cmd)
				}
				if cmd.Pinned == nil || !*cmd.Pinned {
					return "pinned flag missing"
				}
				return ""
			},
		},
		{
			name: "update mute only",
			call: func() error {
				muted := true
				return b.Update(ctx, 7, host.UpdateOpts{Muted: &muted})
			},
			check: func(cmd outgoingCmd) string {
				if cmd.Action != "update-tab" || cmd.TabID != 7 {
					return fmt.Sprintf("got %s tab=%d", cmd.Action, cmd.TabID)
				}
				if cmd.Muted == nil || !*cmd.Muted {
					return "muted flag missing"
				}
				if cmd.Pinned != nil {
					return "pinned sent though unset"
				}
				return ""
			},
		},
		{
			name: "discard",
			call: func() error { return b.Discard(ctx, 7) },
			check: func(cmd outgoingCmd) string {
				if cmd.Action != "discard-tab" || cmd.TabID != 7 {
					return fmt.Sprintf("got %s tab=%d", cmd.Action, cmd.TabID)
				}
				return ""
			},
		},
		{
			name: "move to head",
			call: func() error { return b.Move(ctx, 7, 0) },
			check: func(cmd outgoingCmd) string {
				if cmd.Action != "move-tab" || cmd.Index == nil || *cmd.Index != 0 {
					return fmt.Sprintf("got %+v; index zero must survive encoding", cmd)
				}
				return ""
			},
		},
		{
			name: "ungroup",
			call: func() error { return b.Ungroup(ctx, []int{1, 2}) },
			check: func(cmd outgoingCmd) string {
				if cmd.Action != "ungroup-tabs" || len(cmd.TabIDs) != 2 {
					return fmt.Sprintf("got %s ids=%v", cmd.Action, cmd.TabIDs)
				}
				return ""
			},
		},
	}

	for _, tt := range tests {
		errCh := make(chan error, 1)
		go func() { errCh <- tt.call() }()
		cmd := c.readCmd(t)
		if msg := tt.check(cmd); msg != "" {
			t.Errorf("%s: %s", tt.name, msg)
		}
		c.writeRaw(t, fmt.Sprintf(`{"id": %q, "ok": true}`, cmd.ID))
		if err := <-errCh; err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
	}
}

func TestGroupReturnsAssignedID(t *testing.T) {
	b, c := dialBridge(t)

	type result struct {
		id  int
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		id, err := b.Group(context.Background(), []int{1, 2}, "Work", "blue")
		resCh <- result{id, err}
	}()

	cmd := c.readCmd(t)
	if cmd.Action != "group-tabs" || cmd.Title != "Work" || cmd.Color != "blue" {
		t.Errorf("cmd = %+v", cmd)
	}
	c.writeRaw(t, fmt.Sprintf(`{"id": %q, "ok": true, "groupId": 12}`, cmd.ID))

	res := <-resCh
	if res.err != nil || res.id != 12 {
		t.Errorf("Group = (%d, %v), want (12, nil)", res.id, res.err)
	}
}

func TestGroupsQuery(t *testing.T) {
	b, c := dialBridge(t)

	type result struct {
		groups []types.TabGroup
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		groups, err := b.Groups(context.Background(), 5)
		resCh <- result{groups, err}
	}()

	cmd := c.readCmd(t)
	if cmd.Action != "query-groups" || len(cmd.GroupIDs) != 1 || cmd.GroupIDs[0] != 5 {
		t.Errorf("cmd = %+v", cmd)
	}
	c.writeRaw(t, fmt.Sprintf(`{"id": %q, "ok": true, "groups": [{"id": 5, "title": "Work", "color": "blue"}]}`, cmd.ID))

	res := <-resCh
	if res.err != nil || len(res.groups) != 1 || res.groups[0].Title != "Work" {
		t.Errorf("Groups = (%+v, %v)", res.groups, res.err)
	}
}

func TestCaptureReturnsImage(t *testing.T) {
	b, c := dialBridge(t)

	type result struct {
		img string
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		img, err := b.Capture(context.Background(), 7, 1)
		resCh <- result{img, err}
	}()

	cmd := c.readCmd(t)
	if cmd.Action != "capture-tab" || cmd.TabID != 7 || cmd.WindowID != 1 {
		t.Errorf("cmd = %+v", cmd)
	}
	c.writeRaw(t, fmt.Sprintf(`{"id": %q, "ok": true, "image": "data:image/jpeg;base64,xyz"}`, cmd.ID))

	res := <-resCh
	if res.err != nil || res.img != "data:image/jpeg;base64,xyz" {
		t.Errorf("Capture = (%q, %v)", res.img, res.err)
	}
}

func TestNotConnected(t *testing.T) {
	b := New(nil)
	defer b.Shutdown()

	if b.Connected() {
		t.Error("fresh bridge reports connected")
	}
	if _, err := b.Snapshot(context.Background()); !errors.Is(err, host.ErrNotConnected) {
		t.Errorf("Snapshot err = %v, want ErrNotConnected", err)
	}
	if err := b.Activate(context.Background(), 1); !errors.Is(err, host.ErrNotConnected) {
		t.Errorf("Activate err = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectFailsPendingCall(t *testing.T) {
	b, c := dialBridge(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Tab(context.Background(), 1)
		errCh <- err
	}()

	c.readCmd(t) // command delivered, never answered
	c.conn.CloseNow()

	select {
	case err := <-errCh:
		if !errors.Is(err, host.ErrNotConnected) {
			t.Errorf("err = %v, want ErrNotConnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call survived the disconnect")
	}
}

func TestSecondConnectionReplacesFirst(t *testing.T) {
	b, ts := newBridge(t)
	first := dial(t, ts)

	deadline := time.Now().Add(2 * time.Second)
	for !b.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("first connection never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	second := dial(t, ts)

	// The bridge closes the first socket on replacement.
	readErr := make(chan error, 1)
	go func() {
		_, _, err := first.conn.Read(first.ctx)
		readErr <- err
	}()
	select {
	case err := <-readErr:
		if err == nil {
			t.Fatal("first connection still delivering after replacement")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first connection not closed")
	}

	// Commands now go to the second connection.
	errCh := make(chan error, 1)
	go func() { errCh <- b.Activate(context.Background(), 3) }()
	cmd := second.readCmd(t)
	if cmd.Action != "activate-tab" || cmd.TabID != 3 {
		t.Errorf("cmd = %+v", cmd)
	}
	second.writeRaw(t, fmt.Sprintf(`{"id": %q, "ok": true}`, cmd.ID))
	if err := <-errCh; err != nil {
		t.Errorf("Activate via second connection: %v", err)
	}
}

func TestEventsReachChannel(t *testing.T) {
	b, c := dialBridge(t)

	c.writeRaw(t, `{"type":"tab.activated","tabId":7,"windowId":2}`)

	select {
	case ev := <-b.Events():
		if ev.Kind != host.EventActivated || ev.TabID != 7 || ev.WindowID != 2 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never surfaced")
	}
}

func TestShutdownClosesEventStream(t *testing.T) {
	b, _ := dialBridge(t)

	b.Shutdown()
	b.Shutdown() // idempotent

	select {
	case _, ok := <-b.Events():
		if ok {
			t.Error("got an event after shutdown, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed")
	}
	if b.Connected() {
		t.Error("still connected after shutdown")
	}
}
