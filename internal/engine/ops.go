package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/types"
	"github.com/krail/tabwarden/internal/urlutil"
	"github.com/krail/tabwarden/internal/workspace"
)

// TabsView is the reconciled tab list handed to UI clients.
type TabsView struct {
	Tabs            []types.TabRecord `json:"tabs"`
	CurrentWindowID int               `json:"currentWindowId"`
}

// Tabs runs a full reconciliation cycle against the live host.
func (e *Engine) Tabs(ctx context.Context) (TabsView, error) {
	tabs, windowID, err := e.rec.Current(ctx)
	if err != nil {
		return TabsView{}, err
	}
	return TabsView{Tabs: tabs, CurrentWindowID: windowID}, nil
}

// Switch focuses the tab in the host. The registry update arrives via
// the host's own activation event.
func (e *Engine) Switch(ctx context.Context, tabID int) error {
	if err := e.src.Activate(ctx, tabID); err != nil {
		return fmt.Errorf("switch tab %d: %w", tabID, err)
	}
	return nil
}

// CloseTabs removes the tabs locally first, then asks the host to close
// them. The eager removal keeps a closed tab from flashing back into
// view before the host's removal event lands; that later event becomes
// a no-op confirmation.
func (e *Engine) CloseTabs(ctx context.Context, tabIDs ...int) error {
	for _, id := range tabIDs {
		e.reg.Remove(id)
	}
	e.thumbs.Remove(tabIDs...)
	for _, id := range tabIDs {
		e.hub.Broadcast(hub.Notice{Kind: hub.KindTabRemoved, TabID: id})
	}

	if err := e.src.Close(ctx, tabIDs...); err != nil {
		// Local state already dropped them; reconciliation brings a
		// survivor back on the next read.
		return fmt.Errorf("close tabs: %w", err)
	}
	return nil
}

// SetPinned toggles the pin flag in the host. The registry patch
// arrives via the host's Updated event.
func (e *Engine) SetPinned(ctx context.Context, tabID int, pinned bool) error {
	if err := e.src.Update(ctx, tabID, host.UpdateOpts{Pinned: &pinned}); err != nil {
		return fmt.Errorf("pin tab %d: %w", tabID, err)
	}
	return nil
}

// SetMuted toggles the mute flag in the host. The registry patch
// arrives via the host's Updated event.
func (e *Engine) SetMuted(ctx context.Context, tabID int, muted bool) error {
	if err := e.src.Update(ctx, tabID, host.UpdateOpts{Muted: &muted}); err != nil {
		return fmt.Errorf("mute tab %d: %w", tabID, err)
	}
	return nil
}

// GroupTabs collects the tabs into one host group and stamps the group
// metadata on every member record.
func (e *Engine) GroupTabs(ctx context.Context, tabIDs []int, title, color string) (int, error) {
	groupID, err := e.src.Group(ctx, tabIDs, title, color)
	if err != nil {
		return 0, fmt.Errorf("group tabs: %w", err)
	}
	e.reg.AssignGroup(tabIDs, groupID, title, color)
	e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	return groupID, nil
}

// UngroupTabs releases the tabs from their groups and clears the cached
// group fields.
func (e *Engine) UngroupTabs(ctx context.Context, tabIDs []int) error {
	if err := e.src.Ungroup(ctx, tabIDs); err != nil {
		return fmt.Errorf("ungroup tabs: %w", err)
	}
	e.reg.AssignGroup(tabIDs, types.NoGroup, "", "")
	e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	return nil
}

// MoveTab places the tab at index within its window; -1 means the end.
// Position is re-derived on the next reconciliation, not tracked.
func (e *Engine) MoveTab(ctx context.Context, tabID, index int) error {
	if err := e.src.Move(ctx, tabID, index); err != nil {
		return fmt.Errorf("move tab %d: %w", tabID, err)
	}
	e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	return nil
}

// SnoozeTab parks the page until wake time and closes the live tab.
// Returns the updated snooze list.
func (e *Engine) SnoozeTab(ctx context.Context, tabID int, url, title, faviconURL string, durationMs int64) []types.SnoozedTab {
	now := time.Now().UnixMilli()
	e.snoozed.Add(types.SnoozedTab{
		URL:        url,
		Title:      title,
		FaviconURL: faviconURL,
		SnoozedAt:  now,
		WakeAt:     now + durationMs,
	})
	if tabID > 0 {
		if err := e.CloseTabs(ctx, tabID); err != nil {
			e.log.Warn("snoozed tab close failed", "tab", tabID, "err", err)
		}
	}
	e.hub.Broadcast(hub.Notice{Kind: hub.KindSnoozedChanged})
	return e.snoozed.All()
}

// Snoozed lists the parked tabs in snooze order.
func (e *Engine) Snoozed() []types.SnoozedTab {
	return e.snoozed.All()
}

// CancelSnooze drops the exact (url, wakeAt) entry without reopening
// it. Returns the updated snooze list.
func (e *Engine) CancelSnooze(url string, wakeAt int64) []types.SnoozedTab {
	if e.snoozed.Cancel(url, wakeAt) {
		e.hub.Broadcast(hub.Notice{Kind: hub.KindSnoozedChanged})
	}
	return e.snoozed.All()
}

// WakeSnooze reopens the entry right now, in the foreground, and drops
// it from the list. Returns the updated snooze list.
func (e *Engine) WakeSnooze(ctx context.Context, url string, wakeAt int64) []types.SnoozedTab {
	if !e.snoozed.Cancel(url, wakeAt) {
		return e.snoozed.All()
	}
	if err := e.src.Create(ctx, host.CreateOpts{URL: url, Active: true}); err != nil {
		e.log.Warn("manual wake failed", "url", url, "err", err)
	}
	e.hub.Broadcast(hub.Notice{Kind: hub.KindSnoozedChanged})
	return e.snoozed.All()
}

// SuspendTabs discards the given tabs immediately, skipping failures.
// Returns how many were discarded.
func (e *Engine) SuspendTabs(ctx context.Context, tabIDs []int) int {
	n := 0
	for _, id := range tabIDs {
		if err := e.src.Discard(ctx, id); err != nil {
			e.log.Warn("discard failed", "tab", id, "err", err)
			continue
		}
		isDiscarded := true
		e.reg.Patch(id, host.TabDelta{Discarded: &isDiscarded})
		n++
	}
	if n > 0 {
		e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	}
	return n
}

// DedupeTabs closes duplicate tabs, keeping the most recently used copy
// of each page. Pinned and active duplicates are never closed. Returns
// how many tabs were closed.
func (e *Engine) DedupeTabs(ctx context.Context) (int, error) {
	view, err := e.Tabs(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(view.Tabs))
	var doomed []int
	for _, rec := range view.Tabs {
		key := urlutil.Normalize(rec.URL)
		if !seen[key] {
			seen[key] = true
			continue
		}
		if rec.Pinned || rec.State == types.StateActive {
			continue
		}
		doomed = append(doomed, rec.TabID)
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := e.CloseTabs(ctx, doomed...); err != nil {
		return 0, err
	}
	return len(doomed), nil
}

// Thumbnails dumps the thumbnail cache keyed by tab ID.
func (e *Engine) Thumbnails() map[int]string {
	return e.thumbs.All()
}

// HUDOpened suppresses thumbnail captures while the overlay is visible.
func (e *Engine) HUDOpened() {
	e.thumbs.OverlayShown()
}

// HUDClosed re-enables captures after the hide grace window.
func (e *Engine) HUDClosed() {
	e.thumbs.OverlayHidden()
}

// Frecent returns the top n pages by decayed frecency score.
func (e *Engine) Frecent(n int) []types.FrecencyEntry {
	return e.frec.Top(n, time.Now())
}

// Notes returns every note keyed by normalized URL.
func (e *Engine) Notes() map[string]types.Note {
	return e.notes.All()
}

// SetNote stores text for the page; empty text deletes the note.
func (e *Engine) SetNote(url, text string) {
	e.notes.Set(url, text)
}

// Bookmarks lists saved pages in added order.
func (e *Engine) Bookmarks() []types.Bookmark {
	return e.marks.All()
}

// AddBookmark saves the page and starts background enrichment.
func (e *Engine) AddBookmark(url, title, faviconURL string) {
	e.marks.Add(url, title, faviconURL)
}

// RemoveBookmark deletes the bookmark. Reports whether it existed.
func (e *Engine) RemoveBookmark(url string) bool {
	return e.marks.Remove(url)
}

// SaveWorkspace snapshots the current reconciled tabs under the name.
func (e *Engine) SaveWorkspace(ctx context.Context, name string) (types.Workspace, error) {
	view, err := e.Tabs(ctx)
	if err != nil {
		return types.Workspace{}, err
	}
	return e.spaces.Save(name, view.Tabs), nil
}

// Workspaces lists every saved workspace.
func (e *Engine) Workspaces() []types.Workspace {
	return e.spaces.List()
}

// OpenWorkspace reopens every tab of the workspace in the background.
func (e *Engine) OpenWorkspace(ctx context.Context, name string) (int, error) {
	return e.spaces.Open(ctx, name)
}

// DeleteWorkspace removes the workspace. Reports whether it existed.
func (e *Engine) DeleteWorkspace(name string) bool {
	return e.spaces.Delete(name)
}

// DiffWorkspace compares the workspace against the current tabs.
func (e *Engine) DiffWorkspace(ctx context.Context, name string) (*workspace.DiffResult, error) {
	view, err := e.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	return e.spaces.Diff(name, view.Tabs)
}

// Settings returns the current engine settings.
func (e *Engine) Settings() types.Settings {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	return e.settings
}

// SetSettings replaces the settings, persists them, and notifies
// listeners.
func (e *Engine) SetSettings(s types.Settings) {
	e.settingsMu.Lock()
	e.settings = s
	e.settingsMu.Unlock()
	e.settingsFlush.Kick()

	cp := s
	e.hub.Broadcast(hub.Notice{Kind: hub.KindSettingsChanged, Settings: &cp})
}
