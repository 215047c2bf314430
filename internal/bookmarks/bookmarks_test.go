package bookmarks

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/krail/tabwarden/internal/store"
)

const articleHTML = `<!DOCTYPE html>
<html><head>
<title>Test Article</title>
<meta name="description" content="A short excerpt of the article.">
<meta property="og:site_name" content="Example Site">
</head>
<body>
<article>
<h1>Test Article</h1>
<p>This is the main content of the article. It has enough text to be considered readable content by the readability algorithm. The quick brown fox jumps over the lazy dog. This paragraph needs to be long enough for readability to pick it up as meaningful content.</p>
<p>Second paragraph with more meaningful content that helps the readability parser understand this is a real article and not just navigation or boilerplate. We need several sentences here to make this work properly.</p>
</article>
</body></html>`

func testStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func articleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAddEnriches(t *testing.T) {
	srv := articleServer(t)
	l := New(testStore(t), nil)

	l.Add(srv.URL+"/article", "Test Article", "")
	l.Close() // waits for enrichment

	all := l.All()
	if len(all) != 1 {
		t.Fatalf("got %d bookmarks, want 1", len(all))
	}
	if all[0].Excerpt == "" {
		t.Error("expected a readability excerpt")
	}
	if all[0].SiteName == "" {
		t.Error("expected a site name")
	}
}

func TestEnrichmentFailureLeavesBookmarkBare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()
	l := New(testStore(t), nil)

	l.Add(srv.URL+"/broken", "Broken", "")
	l.Add("about:config", "Config", "")
	l.Close()

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("got %d bookmarks, want 2", len(all))
	}
	for _, b := range all {
		if b.Excerpt != "" || b.SiteName != "" {
			t.Errorf("bookmark %s was enriched, want bare", b.URL)
		}
	}
}

func TestReaddReplacesInPlace(t *testing.T) {
	srv := articleServer(t)
	l := New(testStore(t), nil)
	defer l.Close()

	l.Add(srv.URL+"/a", "First", "")
	l.Add(srv.URL+"/b", "Second", "")
	l.Add(srv.URL+"/a", "Renamed", "")

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("got %d bookmarks, want 2", len(all))
	}
	if all[0].Title != "Renamed" {
		t.Errorf("entry 0 title = %q, want the replacement to keep its slot", all[0].Title)
	}
	if all[1].Title != "Second" {
		t.Errorf("entry 1 title = %q", all[1].Title)
	}
}

func TestRemove(t *testing.T) {
	srv := articleServer(t)
	l := New(testStore(t), nil)
	defer l.Close()

	l.Add(srv.URL+"/page?b=2&a=1", "P", "")

	// Query order does not matter for identity.
	if !l.Remove(srv.URL + "/page?a=1&b=2") {
		t.Fatal("Remove returned false for an existing bookmark")
	}
	if got := l.All(); len(got) != 0 {
		t.Errorf("bookmarks = %+v, want empty", got)
	}
	if l.Remove(srv.URL + "/page?a=1&b=2") {
		t.Error("Remove returned true for a missing bookmark")
	}
}

func TestPersistsAcrossRestart(t *testing.T) {
	s := testStore(t)
	srv := articleServer(t)

	l := New(s, nil)
	l.Add(srv.URL+"/kept", "Kept", "")
	l.Close()

	l2 := New(s, nil)
	defer l2.Close()
	all := l2.All()
	if len(all) != 1 || all[0].Title != "Kept" {
		t.Fatalf("reloaded bookmarks = %+v", all)
	}
}

func TestCorruptStateStartsEmpty(t *testing.T) {
	s := testStore(t)
	s.Set("bookmarks", []byte("[[["))

	l := New(s, nil)
	defer l.Close()
	if got := l.All(); len(got) != 0 {
		t.Errorf("expected no bookmarks after corrupt load, got %+v", got)
	}
}
