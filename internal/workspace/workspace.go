// Package workspace saves named sets of tabs and restores them later.
package workspace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/types"
	"github.com/krail/tabwarden/internal/urlutil"
)

const storeKey = "workspaces"

// DiffEntry is a single tab in a diff result.
type DiffEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Group string `json:"group,omitempty"`
}

// DiffResult compares a workspace against the current tabs. Added holds
// tabs open now but absent from the workspace; Removed holds workspace
// tabs no longer open. Comparison is by normalized URL.
type DiffResult struct {
	Workspace string      `json:"workspace"`
	Added     []DiffEntry `json:"added"`
	Removed   []DiffEntry `json:"removed"`
}

// Manager owns the persisted workspaces. Saving under an existing name
// overwrites; opening recreates tabs best effort. Group titles and
// colors are recorded for diffing but grouping is not reconstructed on
// open.
type Manager struct {
	mu     sync.Mutex
	byName map[string]types.Workspace
	src    host.Source
	hub    *hub.Hub
	flush  *store.Flusher
	log    pslog.Logger
}

// New loads the persisted workspaces. A corrupt value is logged and
// replaced with an empty set.
func New(s store.Store, src host.Source, h *hub.Hub, logger pslog.Logger) *Manager {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	m := &Manager{byName: make(map[string]types.Workspace), src: src, hub: h, log: logger}
	if _, err := store.LoadJSON(s, storeKey, &m.byName); err != nil {
		logger.Warn("workspace state unreadable, starting empty", "err", err)
		m.byName = make(map[string]types.Workspace)
	}
	m.flush = store.NewFlusher(s, storeKey, m.snapshot, logger)
	return m
}

// Close flushes any pending write.
func (m *Manager) Close() {
	m.flush.Close()
}

// Save snapshots the given tabs under the name, keeping content URLs
// only. Overwriting preserves the original creation time.
func (m *Manager) Save(name string, tabs []types.TabRecord) types.Workspace {
	now := time.Now().UnixMilli()
	ws := types.Workspace{Name: name, CreatedAt: now, UpdatedAt: now}
	for _, rec := range tabs {
		if !urlutil.IsContent(rec.URL) {
			continue
		}
		ws.Tabs = append(ws.Tabs, types.WorkspaceTab{
			URL:        rec.URL,
			Title:      rec.Title,
			Pinned:     rec.Pinned,
			GroupTitle: rec.GroupTitle,
			GroupColor: rec.GroupColor,
		})
	}

	m.mu.Lock()
	if prev, ok := m.byName[name]; ok {
		ws.CreatedAt = prev.CreatedAt
	}
	m.byName[name] = ws
	m.mu.Unlock()
	m.flush.Kick()

	m.hub.Broadcast(hub.Notice{Kind: hub.KindWorkspaceUpdated, Workspace: name})
	return ws
}

// List returns every workspace, sorted by name.
func (m *Manager) List() []types.Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Workspace, 0, len(m.byName))
	for _, ws := range m.byName {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the named workspace, if it exists.
func (m *Manager) Get(name string) (types.Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.byName[name]
	return ws, ok
}

// Open recreates every tab of the workspace as a background tab and
// returns how many were opened. Per-tab failures are logged and
// skipped.
func (m *Manager) Open(ctx context.Context, name string) (int, error) {
	ws, ok := m.Get(name)
	if !ok {
		return 0, fmt.Errorf("workspace %q not found", name)
	}

	opened := 0
	for _, tab := range ws.Tabs {
		err := m.src.Create(ctx, host.CreateOpts{URL: tab.URL, Pinned: tab.Pinned})
		if err != nil {
			m.log.Warn("workspace tab reopen failed", "workspace", name, "url", tab.URL, "err", err)
			continue
		}
		opened++
	}
	m.log.Info("workspace opened", "workspace", name, "tabs", len(ws.Tabs), "opened", opened)

	if opened > 0 {
		m.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	}
	return opened, nil
}

// Delete removes the named workspace. Reports whether it existed.
func (m *Manager) Delete(name string) bool {
	m.mu.Lock()
	_, ok := m.byName[name]
	delete(m.byName, name)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.flush.Kick()
	m.hub.Broadcast(hub.Notice{Kind: hub.KindWorkspaceUpdated, Workspace: name})
	return true
}

// Diff compares the named workspace against the given current tabs.
func (m *Manager) Diff(name string, current []types.TabRecord) (*DiffResult, error) {
	ws, ok := m.Get(name)
	if !ok {
		return nil, fmt.Errorf("workspace %q not found", name)
	}

	saved := make(map[string]DiffEntry, len(ws.Tabs))
	for _, tab := range ws.Tabs {
		saved[urlutil.Normalize(tab.URL)] = DiffEntry{
			URL:   tab.URL,
			Title: tab.Title,
			Group: tab.GroupTitle,
		}
	}

	live := make(map[string]DiffEntry, len(current))
	for _, rec := range current {
		if !urlutil.IsContent(rec.URL) {
			continue
		}
		live[urlutil.Normalize(rec.URL)] = DiffEntry{
			URL:   rec.URL,
			Title: rec.Title,
			Group: rec.GroupTitle,
		}
	}

	result := &DiffResult{Workspace: name}
	for key, entry := range live {
		if _, ok := saved[key]; !ok {
			result.Added = append(result.Added, entry)
		}
	}
	for key, entry := range saved {
		if _, ok := live[key]; !ok {
			result.Removed = append(result.Removed, entry)
		}
	}
	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].URL < result.Added[j].URL })
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].URL < result.Removed[j].URL })
	return result, nil
}

func (m *Manager) snapshot() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.Workspace, len(m.byName))
	for k, v := range m.byName {
		out[k] = v
	}
	return out
}
