package engine

import (
	"context"
	"time"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/types"
)

// handleEvent dispatches one lifecycle event. The kind set is closed;
// every kind is handled here and nowhere else.
func (e *Engine) handleEvent(ctx context.Context, ev host.Event) {
	switch ev.Kind {
	case host.EventActivated:
		e.handleActivated(ctx, ev)
	case host.EventCreated:
		e.handleCreated(ctx, ev)
	case host.EventUpdated:
		e.handleUpdated(ctx, ev)
	case host.EventRemoved:
		e.handleRemoved(ev)
	case host.EventMoved, host.EventAttached, host.EventDetached:
		e.handleMoved(ctx, ev)
	case host.EventGroupUpdated:
		e.handleGroupUpdated(ev)
	}
}

func (e *Engine) handleActivated(ctx context.Context, ev host.Event) {
	e.recordDwell()

	e.reg.PushFront(ctx, ev.TabID, ev.WindowID)

	if rec, ok := e.reg.Get(ev.TabID); ok {
		e.frec.RecordVisit(rec.URL)
		e.scheduleCapture(ctx, rec.TabID, rec.WindowID, rec.URL)
	}

	e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
}

func (e *Engine) handleCreated(ctx context.Context, ev host.Event) {
	if ev.Tab != nil {
		e.reg.AppendMissing([]types.TabRecord{*ev.Tab})
	}
	e.reg.PushFront(ctx, ev.TabID, ev.WindowID)

	if rec, ok := e.reg.Get(ev.TabID); ok {
		e.hub.Broadcast(hub.Notice{Kind: hub.KindTabCreated, Tab: &rec})
	}
}

func (e *Engine) handleUpdated(ctx context.Context, ev host.Event) {
	if ev.Delta == nil {
		return
	}
	delta := *ev.Delta
	e.reg.Patch(ev.TabID, delta)

	// Joining a group stamps only the ID; title and color need a host
	// lookup. Leaving one is fully handled by the patch.
	if delta.GroupID != nil && *delta.GroupID != types.NoGroup {
		e.applyGroupMeta(ctx, ev.TabID, *delta.GroupID)
	}

	if delta.Status != nil && *delta.Status == "complete" {
		if active, ok := e.reg.Active(); ok && active.TabID == ev.TabID {
			e.scheduleRecapture(ctx, active)
		}
	}

	e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
}

func (e *Engine) handleRemoved(ev host.Event) {
	e.reg.Remove(ev.TabID)
	e.thumbs.Remove(ev.TabID)
	e.hub.Broadcast(hub.Notice{Kind: hub.KindTabRemoved, TabID: ev.TabID})
}

func (e *Engine) handleMoved(ctx context.Context, ev host.Event) {
	if _, ok := e.reg.Get(ev.TabID); ok {
		if ev.WindowID > 0 {
			wid := ev.WindowID
			e.reg.Patch(ev.TabID, host.TabDelta{WindowID: &wid})
		}
	} else {
		// A moved tab the registry has never seen is as good as a
		// created one.
		e.reg.PushFront(ctx, ev.TabID, ev.WindowID)
	}
	e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
}

func (e *Engine) handleGroupUpdated(ev host.Event) {
	if ev.Group == nil {
		return
	}
	if e.reg.PatchGroup(ev.Group.ID, ev.Group.Title, ev.Group.Color) {
		e.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	}
}

// recordDwell credits the focus time of the outgoing active tab and
// restarts the clock. Sub-second dwells are noise and dropped.
func (e *Engine) recordDwell() {
	prev, ok := e.reg.Active()

	e.focusMu.Lock()
	since := e.focusSince
	e.focusSince = time.Now()
	e.focusMu.Unlock()

	if !ok || since.IsZero() {
		return
	}
	if d := time.Since(since); d >= dwellMin {
		e.frec.RecordFocus(prev.URL, d)
	}
}

func (e *Engine) applyGroupMeta(ctx context.Context, tabID, groupID int) {
	groups, err := e.src.Groups(ctx, groupID)
	if err != nil || len(groups) == 0 {
		e.log.Debug("group lookup failed", "group", groupID, "err", err)
		return
	}
	e.reg.AssignGroup([]int{tabID}, groups[0].ID, groups[0].Title, groups[0].Color)
}

// scheduleCapture fires one capture now and a single fixed-delay second
// attempt for tabs that were still rendering the first time.
func (e *Engine) scheduleCapture(ctx context.Context, tabID, windowID int, url string) {
	go e.captureOnce(tabID, windowID, url)
	time.AfterFunc(e.retryDelay, func() {
		if ctx.Err() != nil {
			return
		}
		e.captureOnce(tabID, windowID, url)
	})
}

// scheduleRecapture refreshes the active tab's thumbnail shortly after
// its page finished loading.
func (e *Engine) scheduleRecapture(ctx context.Context, rec types.TabRecord) {
	time.AfterFunc(e.recaptureWait, func() {
		if ctx.Err() != nil {
			return
		}
		e.captureOnce(rec.TabID, rec.WindowID, rec.URL)
	})
}

func (e *Engine) captureOnce(tabID, windowID int, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()
	if err := e.thumbs.Capture(ctx, tabID, windowID, url); err != nil {
		e.log.Debug("thumbnail capture failed", "tab", tabID, "err", err)
	}
}
