// Package notes stores free-form text attached to pages.
package notes

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/types"
	"github.com/krail/tabwarden/internal/urlutil"
)

const storeKey = "notes"

// Notes maps normalized URLs to their note, so fragment and query-order
// variants of the same page share one note.
type Notes struct {
	mu    sync.Mutex
	byURL map[string]types.Note
	flush *store.Flusher
	log   pslog.Logger
}

// New loads the persisted notes. A corrupt value is logged and replaced
// with an empty map.
func New(s store.Store, logger pslog.Logger) *Notes {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	n := &Notes{byURL: make(map[string]types.Note), log: logger}
	if _, err := store.LoadJSON(s, storeKey, &n.byURL); err != nil {
		logger.Warn("notes state unreadable, starting empty", "err", err)
		n.byURL = make(map[string]types.Note)
	}
	n.flush = store.NewFlusher(s, storeKey, n.snapshot, logger)
	return n
}

// Close flushes any pending write.
func (n *Notes) Close() {
	n.flush.Close()
}

// Set stores text for the page. Empty text deletes the note.
func (n *Notes) Set(url, text string) {
	key := urlutil.Normalize(url)
	n.mu.Lock()
	if text == "" {
		delete(n.byURL, key)
	} else {
		n.byURL[key] = types.Note{Text: text, UpdatedAt: time.Now().UnixMilli()}
	}
	n.mu.Unlock()
	n.flush.Kick()
}

// Get returns the note for the page, if any.
func (n *Notes) Get(url string) (types.Note, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	note, ok := n.byURL[urlutil.Normalize(url)]
	return note, ok
}

// All returns a copy of every note keyed by normalized URL.
func (n *Notes) All() map[string]types.Note {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]types.Note, len(n.byURL))
	for k, v := range n.byURL {
		out[k] = v
	}
	return out
}

func (n *Notes) snapshot() any {
	return n.All()
}
