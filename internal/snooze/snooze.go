// Package snooze parks closed tabs until a wake time and reopens them
// when it arrives.
package snooze

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/types"
)

const (
	storeKey   = "snoozed"
	tickPeriod = time.Minute
)

// List is the persisted set of snoozed tabs, in snooze order.
type List struct {
	mu      sync.Mutex
	entries []types.SnoozedTab

	flush *store.Flusher
	log   pslog.Logger
}

// NewList loads the persisted list and starts the flusher.
func NewList(s store.Store, logger pslog.Logger) *List {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	l := &List{log: logger}

	var entries []types.SnoozedTab
	if _, err := store.LoadJSON(s, storeKey, &entries); err != nil {
		logger.Warn("snooze list load failed, starting empty", "err", err)
	} else {
		l.entries = entries
	}

	l.flush = store.NewFlusher(s, storeKey, l.snapshot, logger)
	return l
}

// Close flushes pending writes and stops the flusher.
func (l *List) Close() {
	l.flush.Close()
}

// Add appends an entry. Closing the live tab is the caller's job.
func (l *List) Add(e types.SnoozedTab) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	l.flush.Kick()
}

// Cancel removes the entry matching (url, wakeAt) exactly and reports
// whether one was found. Reopening is the caller's choice.
func (l *List) Cancel(url string, wakeAt int64) bool {
	l.mu.Lock()
	found := false
	for i, e := range l.entries {
		if e.URL == url && e.WakeAt == wakeAt {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			found = true
			break
		}
	}
	l.mu.Unlock()
	if found {
		l.flush.Kick()
	}
	return found
}

// All returns a copy of the list in snooze order.
func (l *List) All() []types.SnoozedTab {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.SnoozedTab(nil), l.entries...)
}

// takeExpired removes every entry due at now and persists the remaining
// set before returning, so a crash mid-reopen loses wakes instead of
// duplicating them.
func (l *List) takeExpired(now int64) []types.SnoozedTab {
	l.mu.Lock()
	var expired, remaining []types.SnoozedTab
	for _, e := range l.entries {
		if e.WakeAt <= now {
			expired = append(expired, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	l.entries = remaining
	l.mu.Unlock()

	if len(expired) > 0 {
		l.flush.Sync()
	}
	return expired
}

func (l *List) snapshot() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.SnoozedTab(nil), l.entries...)
}

// Scheduler wakes expired entries on a fixed one-minute period.
type Scheduler struct {
	list *List
	src  host.Source
	hub  *hub.Hub
	log  pslog.Logger
}

// NewScheduler returns a Scheduler over the list and host source.
func NewScheduler(list *List, src host.Source, h *hub.Hub, logger pslog.Logger) *Scheduler {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Scheduler{list: list, src: src, hub: h, log: logger}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.WakeExpired(ctx)
		}
	}
}

// WakeExpired reopens every due entry as a background tab, in insertion
// order, and returns how many were woken. Per-entry failures are logged
// and skipped; the scan itself never fails.
func (s *Scheduler) WakeExpired(ctx context.Context) int {
	expired := s.list.takeExpired(time.Now().UnixMilli())
	if len(expired) == 0 {
		return 0
	}

	woken := 0
	for _, e := range expired {
		if err := s.src.Create(ctx, host.CreateOpts{URL: e.URL}); err != nil {
			s.log.Warn("snooze reopen failed", "url", e.URL, "err", err)
			continue
		}
		woken++
	}
	s.log.Info("snooze wake", "due", len(expired), "woken", woken)

	s.hub.Broadcast(hub.Notice{Kind: hub.KindSnoozedChanged})
	if woken > 0 {
		s.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	}
	return woken
}
