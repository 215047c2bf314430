package extbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

// outgoingCmd is one engine command to the extension. Pointer fields
// distinguish "unset" from zero on the wire.
type outgoingCmd struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	TabID    int    `json:"tabId,omitempty"`
	TabIDs   []int  `json:"tabIds,omitempty"`
	GroupIDs []int  `json:"groupIds,omitempty"`
	WindowID int    `json:"windowId,omitempty"`
	Index    *int   `json:"index,omitempty"` // 0 is a valid position
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Color    string `json:"color,omitempty"`
	Active   bool   `json:"active,omitempty"`
	Pinned   *bool  `json:"pinned,omitempty"`
	Muted    *bool  `json:"muted,omitempty"`
}

// incomingMsg is anything the extension sends: a command response when
// ID is set, otherwise a lifecycle event identified by Type.
type incomingMsg struct {
	ID       string          `json:"id,omitempty"`
	OK       *bool           `json:"ok,omitempty"`
	Error    string          `json:"error,omitempty"`
	Tab      json.RawMessage `json:"tab,omitempty"`
	Tabs     json.RawMessage `json:"tabs,omitempty"`
	Groups   json.RawMessage `json:"groups,omitempty"`
	Group    json.RawMessage `json:"group,omitempty"`
	GroupID  int             `json:"groupId,omitempty"`
	WindowID int             `json:"windowId,omitempty"`
	Image    string          `json:"image,omitempty"`

	Type    string          `json:"type,omitempty"`
	TabID   int             `json:"tabId,omitempty"`
	Index   int             `json:"index,omitempty"`
	Changes json.RawMessage `json:"changes,omitempty"`
}

type wireTab struct {
	ID           int    `json:"id"`
	WindowID     int    `json:"windowId"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	FavIconURL   string `json:"favIconUrl"`
	LastAccessed int64  `json:"lastAccessed"`
	GroupID      int    `json:"groupId"`
	Pinned       bool   `json:"pinned"`
	Audible      bool   `json:"audible"`
	Muted        bool   `json:"muted"`
	Discarded    bool   `json:"discarded"`
}

// record maps a wire tab onto the engine's record. Whether a tab is the
// active one is registry business, so the only states produced here are
// background and discarded.
func (wt wireTab) record() types.TabRecord {
	state := types.StateBackground
	if wt.Discarded {
		state = types.StateDiscarded
	}
	gid := wt.GroupID
	if gid == 0 {
		// A zero groupId means the extension omitted the field.
		gid = types.NoGroup
	}
	return types.TabRecord{
		TabID:        wt.ID,
		WindowID:     wt.WindowID,
		URL:          wt.URL,
		Title:        wt.Title,
		FaviconURL:   wt.FavIconURL,
		LastAccessed: wt.LastAccessed,
		State:        state,
		Pinned:       wt.Pinned,
		Audible:      wt.Audible,
		Muted:        wt.Muted,
		GroupID:      gid,
	}
}

type wireGroup struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

func (wg wireGroup) group() types.TabGroup {
	return types.TabGroup{ID: wg.ID, Title: wg.Title, Color: wg.Color, Collapsed: wg.Collapsed}
}

// wireDelta is the changeInfo of a tab.updated event. Absent fields
// stay nil and must not clobber registry state.
type wireDelta struct {
	Title      *string `json:"title"`
	URL        *string `json:"url"`
	FavIconURL *string `json:"favIconUrl"`
	Pinned     *bool   `json:"pinned"`
	Audible    *bool   `json:"audible"`
	Muted      *bool   `json:"muted"`
	Discarded  *bool   `json:"discarded"`
	GroupID    *int    `json:"groupId"`
	Status     *string `json:"status"`
}

func (wd wireDelta) delta() *host.TabDelta {
	return &host.TabDelta{
		Title:      wd.Title,
		URL:        wd.URL,
		FaviconURL: wd.FavIconURL,
		Pinned:     wd.Pinned,
		Audible:    wd.Audible,
		Muted:      wd.Muted,
		Discarded:  wd.Discarded,
		GroupID:    wd.GroupID,
		Status:     wd.Status,
	}
}

// parseEvent maps an unsolicited extension message onto the closed
// lifecycle event set.
func parseEvent(msg incomingMsg) (host.Event, error) {
	switch msg.Type {
	case "tab.activated":
		return host.Event{Kind: host.EventActivated, TabID: msg.TabID, WindowID: msg.WindowID}, nil
	case "tab.created":
		var wt wireTab
		if err := json.Unmarshal(msg.Tab, &wt); err != nil {
			return host.Event{}, fmt.Errorf("parse created tab: %w", err)
		}
		rec := wt.record()
		return host.Event{Kind: host.EventCreated, TabID: rec.TabID, WindowID: rec.WindowID, Tab: &rec}, nil
	case "tab.updated":
		var wd wireDelta
		if len(msg.Changes) > 0 {
			if err := json.Unmarshal(msg.Changes, &wd); err != nil {
				return host.Event{}, fmt.Errorf("parse changes: %w", err)
			}
		}
		return host.Event{Kind: host.EventUpdated, TabID: msg.TabID, Delta: wd.delta()}, nil
	case "tab.removed":
		return host.Event{Kind: host.EventRemoved, TabID: msg.TabID}, nil
	case "tab.moved":
		return host.Event{Kind: host.EventMoved, TabID: msg.TabID, WindowID: msg.WindowID, Index: msg.Index}, nil
	case "tab.attached":
		return host.Event{Kind: host.EventAttached, TabID: msg.TabID, WindowID: msg.WindowID}, nil
	case "tab.detached":
		return host.Event{Kind: host.EventDetached, TabID: msg.TabID, WindowID: msg.WindowID}, nil
	case "tab.group-updated":
		var wg wireGroup
		if err := json.Unmarshal(msg.Group, &wg); err != nil {
			return host.Event{}, fmt.Errorf("parse group: %w", err)
		}
		g := wg.group()
		return host.Event{Kind: host.EventGroupUpdated, Group: &g}, nil
	}
	return host.Event{}, fmt.Errorf("unknown message type %q", msg.Type)
}

// respError maps the extension's error codes onto the host sentinels so
// callers can errors.Is their way to the race-versus-failure decision.
func respError(s string) error {
	switch s {
	case "no-tab":
		return host.ErrNoTab
	case "no-window":
		return host.ErrNoWindow
	case "unsupported":
		return host.ErrUnsupported
	case "":
		return errors.New("extension: command failed")
	}
	return errors.New("extension: " + s)
}
