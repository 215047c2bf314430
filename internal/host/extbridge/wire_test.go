package extbridge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

func parseRaw(t *testing.T, raw string) (host.Event, error) {
	t.Helper()
	var msg incomingMsg
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return parseEvent(msg)
}

func TestParseSimpleEvents(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     host.EventKind
		tabID    int
		windowID int
		index    int
	}{
		{"activated", `{"type":"tab.activated","tabId":7,"windowId":2}`, host.EventActivated, 7, 2, 0},
		{"removed", `{"type":"tab.removed","tabId":7}`, host.EventRemoved, 7, 0, 0},
		{"moved", `{"type":"tab.moved","tabId":7,"windowId":2,"index":4}`, host.EventMoved, 7, 2, 4},
		{"attached", `{"type":"tab.attached","tabId":7,"windowId":3}`, host.EventAttached, 7, 3, 0},
		{"detached", `{"type":"tab.detached","tabId":7,"windowId":2}`, host.EventDetached, 7, 2, 0},
	}
	for _, tt := range tests {
		ev, err := parseRaw(t, tt.raw)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if ev.Kind != tt.kind || ev.TabID != tt.tabID || ev.WindowID != tt.windowID || ev.Index != tt.index {
			t.Errorf("%s: got %+v, want kind=%s tab=%d window=%d index=%d",
				tt.name, ev, tt.kind, tt.tabID, tt.windowID, tt.index)
		}
	}
}

func TestParseCreatedEvent(t *testing.T) {
	raw := `{
		"type": "tab.created",
		"tab": {"id": 9, "windowId": 1, "url": "https://example.com", "title": "Example",
		        "lastAccessed": 1700000000000, "groupId": -1, "favIconUrl": "https://example.com/i.png",
		        "pinned": true, "audible": false}
	}`
	ev, err := parseRaw(t, raw)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != host.EventCreated || ev.TabID != 9 || ev.WindowID != 1 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Tab == nil {
		t.Fatal("no tab payload")
	}
	if ev.Tab.URL != "https://example.com" || ev.Tab.Title != "Example" {
		t.Errorf("tab = %+v", ev.Tab)
	}
	if ev.Tab.State != types.StateBackground {
		t.Errorf("state = %s, want background", ev.Tab.State)
	}
	if ev.Tab.GroupID != types.NoGroup {
		t.Errorf("groupId = %d, want ungrouped", ev.Tab.GroupID)
	}
	if !ev.Tab.Pinned {
		t.Error("pinned flag lost")
	}
	if ev.Tab.LastAccessed != 1700000000000 {
		t.Errorf("lastAccessed = %d", ev.Tab.LastAccessed)
	}
}

func TestWireTabStateMapping(t *testing.T) {
	tests := []struct {
		name      string
		tab       wireTab
		wantState types.TabState
		wantGroup int
	}{
		{"loaded", wireTab{ID: 1, GroupID: -1}, types.StateBackground, types.NoGroup},
		{"discarded", wireTab{ID: 1, GroupID: -1, Discarded: true}, types.StateDiscarded, types.NoGroup},
		{"grouped", wireTab{ID: 1, GroupID: 5}, types.StateBackground, 5},
		{"groupOmitted", wireTab{ID: 1}, types.StateBackground, types.NoGroup},
	}
	for _, tt := range tests {
		rec := tt.tab.record()
		if rec.State != tt.wantState {
			t.Errorf("%s: state = %s, want %s", tt.name, rec.State, tt.wantState)
		}
		if rec.GroupID != tt.wantGroup {
			t.Errorf("%s: groupId = %d, want %d", tt.name, rec.GroupID, tt.wantGroup)
		}
	}
}

func TestParseUpdatedEventDelta(t *testing.T) {
	raw := `{"type":"tab.updated","tabId":3,"changes":{"title":"New","status":"complete","discarded":false}}`
	ev, err := parseRaw(t, raw)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != host.EventUpdated || ev.TabID != 3 {
		t.Fatalf("event = %+v", ev)
	}
	d := ev.Delta
	if d == nil {
		t.Fatal("no delta")
	}
	if d.Title == nil || *d.Title != "New" {
		t.Errorf("title = %v", d.Title)
	}
	if d.Status == nil || *d.Status != "complete" {
		t.Errorf("status = %v", d.Status)
	}
	if d.Discarded == nil || *d.Discarded {
		t.Errorf("discarded = %v", d.Discarded)
	}
	// Fields absent from changes must stay nil.
	if d.URL != nil || d.Pinned != nil || d.GroupID != nil {
		t.Errorf("unreported fields set: %+v", d)
	}
}

func TestParseGroupUpdatedEvent(t *testing.T) {
	raw := `{"type":"tab.group-updated","group":{"id":5,"title":"Work","color":"blue","collapsed":true}}`
	ev, err := parseRaw(t, raw)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != host.EventGroupUpdated || ev.Group == nil {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Group.ID != 5 || ev.Group.Title != "Work" || ev.Group.Color != "blue" || !ev.Group.Collapsed {
		t.Errorf("group = %+v", ev.Group)
	}
}

func TestParseUnknownEventFails(t *testing.T) {
	if _, err := parseRaw(t, `{"type":"tab.teleported","tabId":1}`); err == nil {
		t.Error("unknown event type parsed without error")
	}
}

func TestRespErrorSentinels(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"no-tab", host.ErrNoTab},
		{"no-window", host.ErrNoWindow},
		{"unsupported", host.ErrUnsupported},
	}
	for _, tt := range tests {
		if err := respError(tt.code); !errors.Is(err, tt.want) {
			t.Errorf("respError(%q) = %v, want %v", tt.code, err, tt.want)
		}
	}
	if err := respError("tab crashed"); err == nil || err.Error() != "extension: tab crashed" {
		t.Errorf("free-form error = %v", err)
	}
}
