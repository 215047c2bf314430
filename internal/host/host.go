// Package host defines the contract between the engine and a live
// browser: point-in-time enumeration, per-tab mutation and the lifecycle
// event stream. Implementations live in the extbridge and cdp
// subpackages.
package host

import (
	"context"
	"errors"

	"github.com/krail/tabwarden/internal/types"
)

// Sentinel errors. A mutation racing a user action reports ErrNoTab or
// ErrNoWindow and the engine treats it as a no-op. Adapters that cannot
// express an operation report ErrUnsupported.
var (
	ErrNoTab        = errors.New("host: no such tab")
	ErrNoWindow     = errors.New("host: no such window")
	ErrUnsupported  = errors.New("host: operation not supported")
	ErrNotConnected = errors.New("host: not connected")
)

// EventKind enumerates the lifecycle events a host emits. The set is
// closed: the engine dispatches exhaustively over these and nothing else.
type EventKind int

const (
	EventActivated EventKind = iota
	EventCreated
	EventUpdated
	EventRemoved
	EventMoved
	EventAttached
	EventDetached
	EventGroupUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventActivated:
		return "activated"
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventMoved:
		return "moved"
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	case EventGroupUpdated:
		return "groupUpdated"
	default:
		return "unknown"
	}
}

// TabDelta carries the changed fields of an update event or patch. Nil
// fields were not reported and must be left alone.
type TabDelta struct {
	Title      *string
	URL        *string
	FaviconURL *string
	WindowID   *int
	Pinned     *bool
	Audible    *bool
	Muted      *bool
	Discarded  *bool
	GroupID    *int
	Status     *string // "loading" or "complete"
}

// Event is one lifecycle notification from the host.
type Event struct {
	Kind     EventKind
	TabID    int
	WindowID int
	Index    int             // Moved: new position within the window
	Tab      *types.TabRecord // Created
	Delta    *TabDelta        // Updated
	Group    *types.TabGroup  // GroupUpdated
}

// CreateOpts describes a tab to open.
type CreateOpts struct {
	URL    string
	Active bool
	Pinned bool
}

// UpdateOpts mutates tab flags. Nil fields are left alone.
type UpdateOpts struct {
	Pinned *bool
	Muted  *bool
}

// Snapshot is one point-in-time view of the browser, fetched in a single
// round trip: every open tab in host order, group metadata, and the
// focused window.
type Snapshot struct {
	Tabs            []types.TabRecord
	Groups          []types.TabGroup
	CurrentWindowID int
}

// Source is a live browser. All methods are safe for concurrent use.
// Mutations apply per tab; there is no cross-tab transactionality.
//
// Enumeration maps a host-discarded tab to StateDiscarded and everything
// else to StateBackground. StateActive is owned by the registry's MRU
// logic and never produced by a Source.
type Source interface {
	// Connected reports whether a browser is currently attached.
	Connected() bool

	// Snapshot enumerates the whole browser in one round trip.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Tab fetches a single tab. Returns ErrNoTab when it is gone.
	Tab(ctx context.Context, tabID int) (types.TabRecord, error)

	// Activate focuses the tab and raises its window.
	Activate(ctx context.Context, tabID int) error

	// Close removes the given tabs.
	Close(ctx context.Context, tabIDs ...int) error

	// Create opens a new tab.
	Create(ctx context.Context, opts CreateOpts) error

	// Update mutates pinned/muted flags on one tab.
	Update(ctx context.Context, tabID int, opts UpdateOpts) error

	// Discard unloads the tab from memory while keeping it in the strip.
	Discard(ctx context.Context, tabID int) error

	// Move places the tab at index within its window; -1 means the end.
	Move(ctx context.Context, tabID, index int) error

	// Group collects the tabs into one group and returns its ID.
	Group(ctx context.Context, tabIDs []int, title, color string) (int, error)

	// Ungroup releases the tabs from their groups.
	Ungroup(ctx context.Context, tabIDs []int) error

	// Groups fetches metadata for the given group IDs, or for every
	// group when none are given. Unknown IDs are skipped, not errors.
	Groups(ctx context.Context, groupIDs ...int) ([]types.TabGroup, error)

	// Capture screenshots the tab's visible content and returns it as a
	// data URL. The tab must be the active one in its window.
	Capture(ctx context.Context, tabID, windowID int) (string, error)

	// Events returns the lifecycle event stream. The channel closes when
	// the source shuts down.
	Events() <-chan Event
}
