package registry

import (
	"context"
	"fmt"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

// Reconciler merges the registry's MRU order with a live host snapshot.
// The result never contains a tab the host has closed and never omits
// one the host has open.
type Reconciler struct {
	reg *Registry
	src host.Source
	log pslog.Logger
}

// NewReconciler returns a Reconciler over the given registry and source.
func NewReconciler(reg *Registry, src host.Source, logger pslog.Logger) *Reconciler {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Reconciler{reg: reg, src: src, log: logger}
}

// Current returns the reconciled tab list plus the focused window ID,
// within a single round trip to the host. Ordering is strictly the
// registry's MRU order; live-only tabs follow at the tail in host
// enumeration order. The registry is cleaned up as a side effect, but
// persistence stays asynchronous.
func (rc *Reconciler) Current(ctx context.Context) ([]types.TabRecord, int, error) {
	snap, err := rc.src.Snapshot(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("host snapshot: %w", err)
	}

	liveByID := make(map[int]types.TabRecord, len(snap.Tabs))
	for _, lt := range snap.Tabs {
		liveByID[lt.TabID] = lt
	}

	persisted := rc.reg.All()
	result := make([]types.TabRecord, 0, len(snap.Tabs))
	known := make(map[int]bool, len(persisted))
	var stale []int

	for _, rec := range persisted {
		live, ok := liveByID[rec.TabID]
		if !ok {
			stale = append(stale, rec.TabID)
			continue
		}
		known[rec.TabID] = true
		result = append(result, mergeLive(rec, live))
	}

	var fresh []types.TabRecord
	for _, lt := range snap.Tabs {
		if !known[lt.TabID] {
			fresh = append(fresh, lt)
		}
	}
	result = append(result, fresh...)

	applyGroupMeta(result, snap.Groups)

	for _, id := range stale {
		rc.reg.Remove(id)
	}
	rc.reg.AppendMissing(fresh)
	if len(stale) > 0 || len(fresh) > 0 {
		rc.log.Debug("registry reconciled", "stale", len(stale), "discovered", len(fresh))
	}

	return result, snap.CurrentWindowID, nil
}

// mergeLive overwrites host-authoritative fields on a registry record.
// The registry stays authoritative for ordering, lastAccessed and the
// active flag; the host owns everything else, including whether a
// non-active tab is discarded.
func mergeLive(rec, live types.TabRecord) types.TabRecord {
	rec.WindowID = live.WindowID
	rec.URL = live.URL
	rec.FaviconURL = live.FaviconURL
	rec.Pinned = live.Pinned
	rec.Audible = live.Audible
	rec.Muted = live.Muted
	rec.GroupID = live.GroupID
	if !isPlaceholderTitle(live.Title) {
		rec.Title = live.Title
	}
	if rec.State != types.StateActive {
		if live.State == types.StateDiscarded {
			rec.State = types.StateDiscarded
		} else {
			rec.State = types.StateBackground
		}
	}
	return rec
}

// isPlaceholderTitle reports whether the host title is the empty
// new-tab placeholder, which must not clobber a remembered title.
func isPlaceholderTitle(title string) bool {
	return title == "" || title == "New Tab"
}

func applyGroupMeta(records []types.TabRecord, groups []types.TabGroup) {
	if len(records) == 0 {
		return
	}
	meta := make(map[int]types.TabGroup, len(groups))
	for _, g := range groups {
		meta[g.ID] = g
	}
	for i := range records {
		if records[i].GroupID == types.NoGroup {
			records[i].GroupTitle = ""
			records[i].GroupColor = ""
			continue
		}
		if g, ok := meta[records[i].GroupID]; ok {
			records[i].GroupTitle = g.Title
			records[i].GroupColor = g.Color
		}
	}
}
