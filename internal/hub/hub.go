// Package hub fans engine notices out to overlay listeners. Delivery is
// at-most-once per listener: sends never block, and a listener that has
// fallen behind loses the notice rather than stalling the engine.
package hub

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/types"
)

// Kind identifies the notice payload.
type Kind string

const (
	// KindTabsChanged tells listeners to re-read the tab list.
	KindTabsChanged Kind = "tabs.changed"
	// KindTabCreated carries the new tab's record.
	KindTabCreated Kind = "tab.created"
	// KindTabRemoved carries the closed tab's ID.
	KindTabRemoved Kind = "tab.removed"
	// KindWorkspaceUpdated fires after any workspace mutation.
	KindWorkspaceUpdated Kind = "workspace.updated"
	// KindSnoozedChanged fires after the snoozed list changes.
	KindSnoozedChanged Kind = "snoozed.changed"
	// KindSettingsChanged carries the new settings.
	KindSettingsChanged Kind = "settings.changed"
)

// Notice is one broadcast to listeners.
type Notice struct {
	Kind      Kind
	Tab       *types.TabRecord
	TabID     int
	Workspace string
	Settings  *types.Settings
}

// Delivery reports the outcome of one broadcast.
type Delivery struct {
	Subscribers int
	Delivered   int
	Dropped     int
}

// Hub fans notices out to subscribers.
type Hub struct {
	mu    sync.Mutex
	subs  map[chan Notice]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Hub.
func New(logger pslog.Logger) *Hub {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		subs:  make(map[chan Notice]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a listener and returns its channel plus a cancel
// func. Cancel is idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan Notice, func()) {
	ch := make(chan Notice, h.depth)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	h.log.Debug("hub subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
			h.log.Debug("hub unsubscribe")
		})
	}
}

// Broadcast sends the notice to every subscriber without blocking and
// returns what actually happened to it.
func (h *Hub) Broadcast(n Notice) Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()

	d := Delivery{Subscribers: len(h.subs)}
	for sub := range h.subs {
		select {
		case sub <- n:
			d.Delivered++
		default:
			d.Dropped++
		}
	}
	if d.Dropped > 0 {
		h.log.Trace("hub dropped", "kind", string(n.Kind), "count", d.Dropped)
	}
	return d
}
