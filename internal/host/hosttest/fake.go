// Package hosttest provides an in-memory host.Source for tests: a
// mutable set of tabs, scriptable failures, and recorded mutation calls.
package hosttest

import (
	"context"
	"sync"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

// Fake implements host.Source against an in-memory tab set.
type Fake struct {
	mu            sync.Mutex
	tabs          []types.TabRecord
	groups        []types.TabGroup
	currentWindow int
	connected     bool
	nextGroupID   int

	// SnapshotErr, when set, fails every Snapshot call.
	SnapshotErr error
	// CreateErr, when set, fails every Create call.
	CreateErr error
	// DiscardErr, when set, fails every Discard call.
	DiscardErr error
	// CaptureFunc overrides the default capture result.
	CaptureFunc func(tabID, windowID int) (string, error)

	activated []int
	closed    []int
	created   []host.CreateOpts
	discarded []int
	moved     []int
	grouped   [][]int
	ungrouped [][]int

	events chan host.Event
}

// New returns a connected Fake with window 1 focused and no tabs.
func New() *Fake {
	return &Fake{
		currentWindow: 1,
		connected:     true,
		nextGroupID:   100,
		events:        make(chan host.Event, 64),
	}
}

// SetTabs replaces the live tab set.
func (f *Fake) SetTabs(tabs ...types.TabRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs = append([]types.TabRecord(nil), tabs...)
}

// SetGroups replaces the live group metadata.
func (f *Fake) SetGroups(groups ...types.TabGroup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append([]types.TabGroup(nil), groups...)
}

// SetCurrentWindow changes the focused window.
func (f *Fake) SetCurrentWindow(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentWindow = id
}

// SetConnected toggles the connection state.
func (f *Fake) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

// Emit pushes a lifecycle event to the stream.
func (f *Fake) Emit(ev host.Event) {
	f.events <- ev
}

// CloseEvents closes the event stream.
func (f *Fake) CloseEvents() {
	close(f.events)
}

// TabByID returns the live tab, if present.
func (f *Fake) TabByID(id int) (types.TabRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tabs {
		if t.TabID == id {
			return t, true
		}
	}
	return types.TabRecord{}, false
}

// ActivatedIDs returns every Activate call in order.
func (f *Fake) ActivatedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.activated...)
}

// ClosedIDs returns every tab ID passed to Close, in order.
func (f *Fake) ClosedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closed...)
}

// CreatedOpts returns every Create call in order.
func (f *Fake) CreatedOpts() []host.CreateOpts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.CreateOpts(nil), f.created...)
}

// DiscardedIDs returns every Discard call in order.
func (f *Fake) DiscardedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.discarded...)
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Snapshot(ctx context.Context) (host.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SnapshotErr != nil {
		return host.Snapshot{}, f.SnapshotErr
	}
	return host.Snapshot{
		Tabs:            append([]types.TabRecord(nil), f.tabs...),
		Groups:          append([]types.TabGroup(nil), f.groups...),
		CurrentWindowID: f.currentWindow,
	}, nil
}

func (f *Fake) Tab(ctx context.Context, tabID int) (types.TabRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tabs {
		if t.TabID == tabID {
			return t, nil
		}
	}
	return types.TabRecord{}, host.ErrNoTab
}

func (f *Fake) Activate(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, tabID)
	for _, t := range f.tabs {
		if t.TabID == tabID {
			return nil
		}
	}
	return host.ErrNoTab
}

func (f *Fake) Close(ctx context.Context, tabIDs ...int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tabIDs...)
	for _, id := range tabIDs {
		for i, t := range f.tabs {
			if t.TabID == id {
				f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (f *Fake) Create(ctx context.Context, opts host.CreateOpts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	f.created = append(f.created, opts)
	id := 1
	for _, t := range f.tabs {
		if t.TabID >= id {
			id = t.TabID + 1
		}
	}
	f.tabs = append(f.tabs, types.TabRecord{
		TabID:    id,
		WindowID: f.currentWindow,
		URL:      opts.URL,
		State:    types.StateBackground,
		Pinned:   opts.Pinned,
		GroupID:  types.NoGroup,
	})
	return nil
}

func (f *Fake) Update(ctx context.Context, tabID int, opts host.UpdateOpts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tabs {
		if f.tabs[i].TabID != tabID {
			continue
		}
		if opts.Pinned != nil {
			f.tabs[i].Pinned = *opts.Pinned
		}
		if opts.Muted != nil {
			f.tabs[i].Muted = *opts.Muted
		}
		return nil
	}
	return host.ErrNoTab
}

func (f *Fake) Discard(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DiscardErr != nil {
		return f.DiscardErr
	}
	f.discarded = append(f.discarded, tabID)
	for i := range f.tabs {
		if f.tabs[i].TabID == tabID {
			f.tabs[i].State = types.StateDiscarded
			return nil
		}
	}
	return host.ErrNoTab
}

func (f *Fake) Move(ctx context.Context, tabID, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved = append(f.moved, tabID)
	for _, t := range f.tabs {
		if t.TabID == tabID {
			return nil
		}
	}
	return host.ErrNoTab
}

func (f *Fake) Group(ctx context.Context, tabIDs []int, title, color string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grouped = append(f.grouped, append([]int(nil), tabIDs...))
	f.nextGroupID++
	gid := f.nextGroupID
	for i := range f.tabs {
		for _, id := range tabIDs {
			if f.tabs[i].TabID == id {
				f.tabs[i].GroupID = gid
			}
		}
	}
	f.groups = append(f.groups, types.TabGroup{ID: gid, Title: title, Color: color})
	return gid, nil
}

func (f *Fake) Ungroup(ctx context.Context, tabIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ungrouped = append(f.ungrouped, append([]int(nil), tabIDs...))
	for i := range f.tabs {
		for _, id := range tabIDs {
			if f.tabs[i].TabID == id {
				f.tabs[i].GroupID = types.NoGroup
			}
		}
	}
	return nil
}

func (f *Fake) Groups(ctx context.Context, groupIDs ...int) ([]types.TabGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(groupIDs) == 0 {
		return append([]types.TabGroup(nil), f.groups...), nil
	}
	var out []types.TabGroup
	for _, g := range f.groups {
		for _, id := range groupIDs {
			if g.ID == id {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func (f *Fake) Capture(ctx context.Context, tabID, windowID int) (string, error) {
	if f.CaptureFunc != nil {
		return f.CaptureFunc(tabID, windowID)
	}
	return "data:image/png;base64,fake", nil
}

func (f *Fake) Events() <-chan host.Event {
	return f.events
}
