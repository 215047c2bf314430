// Package bookmarks keeps a persisted reading list. New bookmarks are
// enriched in the background with a readability excerpt and site name;
// when the fetch fails the bookmark simply stays bare.
package bookmarks

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/types"
	"github.com/krail/tabwarden/internal/urlutil"
)

const (
	storeKey     = "bookmarks"
	fetchTimeout = 15 * time.Second
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// List holds bookmarks in the order they were added. Identity is the
// normalized URL: re-adding a page replaces its entry in place.
type List struct {
	mu      sync.Mutex
	entries []types.Bookmark
	flush   *store.Flusher
	log     pslog.Logger
	wg      sync.WaitGroup
}

// New loads the persisted list. A corrupt value is logged and replaced
// with an empty list.
func New(s store.Store, logger pslog.Logger) *List {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	l := &List{log: logger}
	if _, err := store.LoadJSON(s, storeKey, &l.entries); err != nil {
		logger.Warn("bookmark state unreadable, starting empty", "err", err)
		l.entries = nil
	}
	l.flush = store.NewFlusher(s, storeKey, l.snapshot, logger)
	return l
}

// Close waits for in-flight enrichments and flushes any pending write.
func (l *List) Close() {
	l.wg.Wait()
	l.flush.Close()
}

// Add saves the page and kicks off background enrichment. Re-adding an
// already bookmarked page replaces its entry, keeping its position.
func (l *List) Add(url, title, faviconURL string) {
	b := types.Bookmark{
		URL:        url,
		Title:      title,
		FaviconURL: faviconURL,
		AddedAt:    time.Now().UnixMilli(),
	}

	key := urlutil.Normalize(url)
	l.mu.Lock()
	if i := l.indexLocked(key); i >= 0 {
		l.entries[i] = b
	} else {
		l.entries = append(l.entries, b)
	}
	l.mu.Unlock()
	l.flush.Kick()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.enrich(url)
	}()
}

// Remove deletes the bookmark matching the URL. Reports whether an
// entry was removed.
func (l *List) Remove(url string) bool {
	key := urlutil.Normalize(url)
	l.mu.Lock()
	i := l.indexLocked(key)
	if i >= 0 {
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
	}
	l.mu.Unlock()
	if i < 0 {
		return false
	}
	l.flush.Kick()
	return true
}

// All returns a copy of the list in added order.
func (l *List) All() []types.Bookmark {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Bookmark(nil), l.entries...)
}

func (l *List) enrich(url string) {
	if !urlutil.IsContent(url) {
		return
	}
	excerpt, siteName, err := fetchArticle(url)
	if err != nil {
		l.log.Debug("bookmark enrichment failed", "url", url, "err", err)
		return
	}

	key := urlutil.Normalize(url)
	l.mu.Lock()
	i := l.indexLocked(key)
	if i >= 0 {
		l.entries[i].Excerpt = excerpt
		l.entries[i].SiteName = siteName
	}
	l.mu.Unlock()
	if i >= 0 {
		l.flush.Kick()
	}
}

func (l *List) indexLocked(normalized string) int {
	for i, b := range l.entries {
		if urlutil.Normalize(b.URL) == normalized {
			return i
		}
	}
	return -1
}

func (l *List) snapshot() any {
	return l.All()
}

// fetchArticle fetches the page and runs readability extraction over
// the body.
func fetchArticle(url string) (excerpt, siteName string, err error) {
	client := &http.Client{Timeout: fetchTimeout}
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, nil)
	if err != nil {
		return "", "", fmt.Errorf("extract readable content from %s: %w", url, err)
	}
	return article.Excerpt, article.SiteName, nil
}
