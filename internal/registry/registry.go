// Package registry maintains the MRU-ordered tab list. Memory is
// authoritative: every mutation happens under one mutex and is persisted
// asynchronously through a single flusher, so there is no read-modify-
// write race on the store.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/types"
)

const storeKey = "registry"

// Registry is the MRU tab list, head = most recently used. At most one
// record is StateActive at any time.
type Registry struct {
	mu      sync.Mutex
	records []types.TabRecord

	src   host.Source
	flush *store.Flusher
	log   pslog.Logger
}

// New loads the persisted list and starts the flusher. Corrupt state
// logs one warning and starts empty.
func New(s store.Store, src host.Source, logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	r := &Registry{src: src, log: logger}

	var records []types.TabRecord
	if _, err := store.LoadJSON(s, storeKey, &records); err != nil {
		logger.Warn("registry load failed, starting empty", "err", err)
	} else {
		r.records = records
	}

	r.flush = store.NewFlusher(s, storeKey, r.snapshot, logger)
	return r
}

// Close flushes pending writes and stops the flusher.
func (r *Registry) Close() {
	r.flush.Close()
}

// PushFront moves the tab to the head: refresh lastAccessed, mark it the
// single active record, demote every other active record to background.
// An unknown tab is fetched from the host once; if the host no longer has
// it the call is a silent no-op.
func (r *Registry) PushFront(ctx context.Context, tabID, windowID int) {
	now := time.Now().UnixMilli()

	r.mu.Lock()
	if i := r.indexLocked(tabID); i >= 0 {
		rec := r.records[i]
		r.records = append(r.records[:i], r.records[i+1:]...)
		rec.LastAccessed = now
		rec.State = types.StateActive
		if windowID > 0 {
			rec.WindowID = windowID
		}
		r.demoteOthersLocked(tabID)
		r.records = append([]types.TabRecord{rec}, r.records...)
		r.mu.Unlock()
		r.flush.Kick()
		return
	}
	r.mu.Unlock()

	rec, err := r.src.Tab(ctx, tabID)
	if err != nil {
		if !errors.Is(err, host.ErrNoTab) {
			r.log.Warn("tab fetch failed", "tab", tabID, "err", err)
		}
		return
	}
	rec.LastAccessed = now
	rec.State = types.StateActive
	if windowID > 0 {
		rec.WindowID = windowID
	}

	r.mu.Lock()
	// The tab may have been appended while the fetch was in flight.
	if i := r.indexLocked(tabID); i >= 0 {
		r.records = append(r.records[:i], r.records[i+1:]...)
	}
	r.demoteOthersLocked(tabID)
	r.records = append([]types.TabRecord{rec}, r.records...)
	r.mu.Unlock()
	r.flush.Kick()
}

// Patch merges the delta's set fields into the matching record. Absent
// records are never created by a patch.
func (r *Registry) Patch(tabID int, delta host.TabDelta) {
	r.mu.Lock()
	i := r.indexLocked(tabID)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	rec := &r.records[i]
	if delta.Title != nil {
		rec.Title = *delta.Title
	}
	if delta.URL != nil {
		rec.URL = *delta.URL
	}
	if delta.FaviconURL != nil {
		rec.FaviconURL = *delta.FaviconURL
	}
	if delta.WindowID != nil {
		rec.WindowID = *delta.WindowID
	}
	if delta.Pinned != nil {
		rec.Pinned = *delta.Pinned
	}
	if delta.Audible != nil {
		rec.Audible = *delta.Audible
	}
	if delta.Muted != nil {
		rec.Muted = *delta.Muted
	}
	if delta.Discarded != nil {
		// The active record can never be discarded out from under the
		// user; activation wins the race.
		switch {
		case *delta.Discarded && rec.State != types.StateActive:
			rec.State = types.StateDiscarded
		case !*delta.Discarded && rec.State == types.StateDiscarded:
			rec.State = types.StateBackground
		}
	}
	if delta.GroupID != nil {
		rec.GroupID = *delta.GroupID
		if *delta.GroupID == types.NoGroup {
			rec.GroupTitle = ""
			rec.GroupColor = ""
		}
	}
	r.mu.Unlock()
	r.flush.Kick()
}

// AssignGroup stamps group membership onto the given tabs. Passing
// types.NoGroup clears membership and the cached title/color.
func (r *Registry) AssignGroup(tabIDs []int, groupID int, title, color string) {
	if groupID == types.NoGroup {
		title, color = "", ""
	}
	r.mu.Lock()
	for _, id := range tabIDs {
		if i := r.indexLocked(id); i >= 0 {
			r.records[i].GroupID = groupID
			r.records[i].GroupTitle = title
			r.records[i].GroupColor = color
		}
	}
	r.mu.Unlock()
	r.flush.Kick()
}

// PatchGroup updates cached group metadata on every member of the group.
// It reports whether any record changed.
func (r *Registry) PatchGroup(groupID int, title, color string) bool {
	changed := false
	r.mu.Lock()
	for i := range r.records {
		if r.records[i].GroupID != groupID {
			continue
		}
		if r.records[i].GroupTitle != title || r.records[i].GroupColor != color {
			r.records[i].GroupTitle = title
			r.records[i].GroupColor = color
			changed = true
		}
	}
	r.mu.Unlock()
	if changed {
		r.flush.Kick()
	}
	return changed
}

// Remove deletes the matching record. Idempotent.
func (r *Registry) Remove(tabID int) {
	r.mu.Lock()
	i := r.indexLocked(tabID)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.records = append(r.records[:i], r.records[i+1:]...)
	r.mu.Unlock()
	r.flush.Kick()
}

// AppendMissing adds records for tabs the registry has not seen, at the
// tail, preserving the given order. Known IDs are skipped.
func (r *Registry) AppendMissing(records []types.TabRecord) {
	if len(records) == 0 {
		return
	}
	added := false
	r.mu.Lock()
	for _, rec := range records {
		if r.indexLocked(rec.TabID) >= 0 {
			continue
		}
		if rec.LastAccessed == 0 {
			rec.LastAccessed = time.Now().UnixMilli()
		}
		r.records = append(r.records, rec)
		added = true
	}
	r.mu.Unlock()
	if added {
		r.flush.Kick()
	}
}

// All returns a copy of the list in MRU order, without contacting the
// host. External reads go through the Reconciler instead.
func (r *Registry) All() []types.TabRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TabRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Get returns the record for tabID, if present.
func (r *Registry) Get(tabID int) (types.TabRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(tabID); i >= 0 {
		return r.records[i], true
	}
	return types.TabRecord{}, false
}

// Active returns the single active record, if any.
func (r *Registry) Active() (types.TabRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.State == types.StateActive {
			return rec, true
		}
	}
	return types.TabRecord{}, false
}

func (r *Registry) indexLocked(tabID int) int {
	for i, rec := range r.records {
		if rec.TabID == tabID {
			return i
		}
	}
	return -1
}

func (r *Registry) demoteOthersLocked(exceptTabID int) {
	for i := range r.records {
		if r.records[i].TabID != exceptTabID && r.records[i].State == types.StateActive {
			r.records[i].State = types.StateBackground
		}
	}
}

func (r *Registry) snapshot() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TabRecord, len(r.records))
	copy(out, r.records)
	return out
}
