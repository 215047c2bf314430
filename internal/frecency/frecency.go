// Package frecency ranks URLs by visit frequency decayed by recency.
package frecency

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/types"
	"github.com/krail/tabwarden/internal/urlutil"
)

const (
	storeKey = "frecency"

	// maxEntries bounds the persisted list to the top scorers.
	maxEntries = 500

	// halfLifeHours halves a score for every day since the last visit.
	halfLifeHours = 24.0
)

// Score computes the decayed frecency of one entry at the given moment:
// log2(visits+1) halved per 24h since the last visit.
func Score(e types.FrecencyEntry, now time.Time) float64 {
	hours := float64(now.UnixMilli()-e.LastVisit) / (1000 * 3600)
	if hours < 0 {
		hours = 0
	}
	return math.Log2(float64(e.VisitCount)+1) * math.Pow(0.5, hours/halfLifeHours)
}

// Tracker accumulates visit history in memory and flushes asynchronously.
// Entries are keyed by exact URL; non-content URLs are ignored.
type Tracker struct {
	mu      sync.Mutex
	entries []types.FrecencyEntry
	index   map[string]int

	flush *store.Flusher
	log   pslog.Logger
}

// NewTracker loads persisted history and starts the flusher. A corrupt
// value logs one warning and starts empty.
func NewTracker(s store.Store, logger pslog.Logger) *Tracker {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	t := &Tracker{index: make(map[string]int), log: logger}

	var entries []types.FrecencyEntry
	if _, err := store.LoadJSON(s, storeKey, &entries); err != nil {
		logger.Warn("frecency load failed, starting empty", "err", err)
	} else {
		t.entries = entries
		for i, e := range entries {
			t.index[e.URL] = i
		}
	}

	t.flush = store.NewFlusher(s, storeKey, t.snapshot, logger)
	return t
}

// Close flushes pending writes and stops the flusher.
func (t *Tracker) Close() {
	t.flush.Close()
}

// RecordVisit credits one visit to the URL and stamps it as just seen.
func (t *Tracker) RecordVisit(url string) {
	if !urlutil.IsContent(url) {
		return
	}
	now := time.Now()

	t.mu.Lock()
	if i, ok := t.index[url]; ok {
		t.entries[i].VisitCount++
		t.entries[i].LastVisit = now.UnixMilli()
	} else {
		t.entries = append(t.entries, types.FrecencyEntry{
			URL:        url,
			VisitCount: 1,
			LastVisit:  now.UnixMilli(),
		})
	}
	t.capLocked(now)
	t.mu.Unlock()

	t.flush.Kick()
}

// RecordFocus adds dwell time to the URL's entry. Focus does not count
// as a visit and does not refresh LastVisit.
func (t *Tracker) RecordFocus(url string, d time.Duration) {
	if !urlutil.IsContent(url) || d <= 0 {
		return
	}
	now := time.Now()

	t.mu.Lock()
	if i, ok := t.index[url]; ok {
		t.entries[i].FocusMs += d.Milliseconds()
	} else {
		t.entries = append(t.entries, types.FrecencyEntry{
			URL:       url,
			LastVisit: now.UnixMilli(),
			FocusMs:   d.Milliseconds(),
		})
		t.capLocked(now)
	}
	t.mu.Unlock()

	t.flush.Kick()
}

// Top returns the n highest-scoring entries at the given moment.
func (t *Tracker) Top(n int, now time.Time) []types.FrecencyEntry {
	t.mu.Lock()
	out := make([]types.FrecencyEntry, len(t.entries))
	copy(out, t.entries)
	t.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return Score(out[i], now) > Score(out[j], now)
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// capLocked re-sorts by score and truncates to maxEntries. Held entries
// keep their relative order on score ties.
func (t *Tracker) capLocked(now time.Time) {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return Score(t.entries[i], now) > Score(t.entries[j], now)
	})
	if len(t.entries) > maxEntries {
		t.entries = t.entries[:maxEntries]
	}
	clear(t.index)
	for i, e := range t.entries {
		t.index[e.URL] = i
	}
}

func (t *Tracker) snapshot() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.FrecencyEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
