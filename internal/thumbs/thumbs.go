// Package thumbs keeps a bounded, persisted cache of tab screenshots.
//
// Capture is suppressed while the overlay is on screen and for a short
// grace window after it hides, so the cache never holds a shot of the
// overlay itself or of its hide animation.
package thumbs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/urlutil"
)

const (
	storeKey    = "thumbnails"
	capacity    = 48
	hiddenGrace = 2 * time.Second
)

// entry is the persisted form. The slice holds oldest-inserted first;
// that order survives restarts so eviction stays stable.
type entry struct {
	TabID int    `json:"tabId"`
	Image string `json:"image"`
}

// Cache maps tab IDs to screenshot data URLs. When full, inserting a
// new tab evicts the oldest-inserted entry. Recapturing a tab already
// in the cache refreshes its image but keeps its insertion slot.
type Cache struct {
	mu       sync.Mutex
	entries  []entry
	visible  bool
	hiddenAt time.Time

	src   host.Source
	flush *store.Flusher
	log   pslog.Logger
}

// New loads the persisted cache. A corrupt value is logged and replaced
// with an empty cache rather than failing startup.
func New(s store.Store, src host.Source, logger pslog.Logger) *Cache {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	c := &Cache{src: src, log: logger}
	if _, err := store.LoadJSON(s, storeKey, &c.entries); err != nil {
		logger.Warn("thumbnail state unreadable, starting empty", "err", err)
		c.entries = nil
	}
	if len(c.entries) > capacity {
		c.entries = c.entries[len(c.entries)-capacity:]
	}
	c.flush = store.NewFlusher(s, storeKey, c.snapshot, logger)
	return c
}

// Close flushes any pending write.
func (c *Cache) Close() {
	c.flush.Close()
}

// OverlayShown suppresses captures until OverlayHidden.
func (c *Cache) OverlayShown() {
	c.mu.Lock()
	c.visible = true
	c.mu.Unlock()
}

// OverlayHidden re-enables captures after the grace window.
func (c *Cache) OverlayHidden() {
	c.mu.Lock()
	c.visible = false
	c.hiddenAt = time.Now()
	c.mu.Unlock()
}

// Capture screenshots the tab and stores the result. It is a silent
// no-op for non-content URLs and while captures are suppressed. Only
// the host call itself can fail.
func (c *Cache) Capture(ctx context.Context, tabID, windowID int, url string) error {
	if !urlutil.IsContent(url) {
		return nil
	}
	c.mu.Lock()
	suppressed := c.visible || time.Since(c.hiddenAt) < hiddenGrace
	c.mu.Unlock()
	if suppressed {
		return nil
	}

	img, err := c.src.Capture(ctx, tabID, windowID)
	if err != nil {
		return fmt.Errorf("capture tab %d: %w", tabID, err)
	}

	c.mu.Lock()
	if i := c.indexLocked(tabID); i >= 0 {
		c.entries[i].Image = img
	} else {
		c.entries = append(c.entries, entry{TabID: tabID, Image: img})
		if len(c.entries) > capacity {
			copy(c.entries, c.entries[1:])
			c.entries = c.entries[:len(c.entries)-1]
		}
	}
	c.mu.Unlock()
	c.flush.Kick()
	return nil
}

// Remove drops the thumbnails for the given tabs. Unknown IDs are
// ignored.
func (c *Cache) Remove(tabIDs ...int) {
	c.mu.Lock()
	removed := false
	for _, id := range tabIDs {
		if i := c.indexLocked(id); i >= 0 {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			removed = true
		}
	}
	c.mu.Unlock()
	if removed {
		c.flush.Kick()
	}
}

// Get returns the stored image for a tab, if any.
func (c *Cache) Get(tabID int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(tabID); i >= 0 {
		return c.entries[i].Image, true
	}
	return "", false
}

// All returns a copy of the cache keyed by tab ID.
func (c *Cache) All() map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]string, len(c.entries))
	for _, e := range c.entries {
		out[e.TabID] = e.Image
	}
	return out
}

func (c *Cache) indexLocked(tabID int) int {
	for i, e := range c.entries {
		if e.TabID == tabID {
			return i
		}
	}
	return -1
}

func (c *Cache) snapshot() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entry(nil), c.entries...)
}
