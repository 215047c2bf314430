package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/krail/tabwarden/internal/host/hosttest"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/types"
)

func testStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testManager(t *testing.T) (*Manager, *hosttest.Fake) {
	t.Helper()
	f := hosttest.New()
	m := New(testStore(t), f, hub.New(nil), nil)
	t.Cleanup(m.Close)
	return m, f
}

func rec(url, title string) types.TabRecord {
	return types.TabRecord{URL: url, Title: title, GroupID: types.NoGroup}
}

func TestSaveKeepsContentURLsOnly(t *testing.T) {
	m, _ := testManager(t)

	ws := m.Save("work", []types.TabRecord{
		rec("https://a.com", "A"),
		rec("about:config", "Config"),
		rec("https://b.com", "B"),
	})

	if len(ws.Tabs) != 2 {
		t.Fatalf("saved %d tabs, want 2", len(ws.Tabs))
	}
	if ws.Tabs[0].URL != "https://a.com" || ws.Tabs[1].URL != "https://b.com" {
		t.Errorf("saved tabs = %+v", ws.Tabs)
	}
}

func TestListSortsByName(t *testing.T) {
	m, _ := testManager(t)

	m.Save("zebra", []types.TabRecord{rec("https://z.com", "Z")})
	m.Save("apple", []types.TabRecord{rec("https://a.com", "A")})

	list := m.List()
	if len(list) != 2 || list[0].Name != "apple" || list[1].Name != "zebra" {
		t.Fatalf("List = %+v, want apple then zebra", list)
	}
}

func TestOverwritePreservesCreatedAt(t *testing.T) {
	m, _ := testManager(t)

	m.Save("work", []types.TabRecord{rec("https://a.com", "A")})
	m.mu.Lock()
	ws := m.byName["work"]
	ws.CreatedAt = 12345
	m.byName["work"] = ws
	m.mu.Unlock()

	m.Save("work", []types.TabRecord{rec("https://b.com", "B")})

	got, _ := m.Get("work")
	if got.CreatedAt != 12345 {
		t.Errorf("CreatedAt = %d, want the original 12345", got.CreatedAt)
	}
	if len(got.Tabs) != 1 || got.Tabs[0].URL != "https://b.com" {
		t.Errorf("tabs = %+v, want the overwrite", got.Tabs)
	}
}

func TestOpenRecreatesTabs(t *testing.T) {
	m, f := testManager(t)
	m.Save("work", []types.TabRecord{
		rec("https://a.com", "A"),
		{URL: "https://b.com", Title: "B", Pinned: true, GroupID: types.NoGroup},
	})

	opened, err := m.Open(context.Background(), "work")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != 2 {
		t.Fatalf("opened = %d, want 2", opened)
	}

	created := f.CreatedOpts()
	if len(created) != 2 {
		t.Fatalf("created %d tabs, want 2", len(created))
	}
	if created[0].URL != "https://a.com" || created[1].URL != "https://b.com" {
		t.Errorf("created order = %+v", created)
	}
	if created[0].Active || created[1].Active {
		t.Error("workspace tabs must open in the background")
	}
	if !created[1].Pinned {
		t.Error("pinned flag not restored")
	}
}

func TestOpenUnknownWorkspace(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.Open(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for an unknown workspace")
	}
}

func TestOpenContinuesPastFailures(t *testing.T) {
	m, f := testManager(t)
	m.Save("work", []types.TabRecord{rec("https://a.com", "A"), rec("https://b.com", "B")})
	f.CreateErr = errors.New("browser gone")

	opened, err := m.Open(context.Background(), "work")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != 0 {
		t.Errorf("opened = %d, want 0 when every create fails", opened)
	}
}

func TestDelete(t *testing.T) {
	m, _ := testManager(t)
	m.Save("work", []types.TabRecord{rec("https://a.com", "A")})

	if !m.Delete("work") {
		t.Fatal("Delete returned false for an existing workspace")
	}
	if _, ok := m.Get("work"); ok {
		t.Error("workspace still present after Delete")
	}
	if m.Delete("work") {
		t.Error("Delete returned true for a missing workspace")
	}
}

func TestDiff(t *testing.T) {
	m, _ := testManager(t)
	m.Save("work", []types.TabRecord{
		rec("https://kept.com/page?b=2&a=1", "Kept"),
		rec("https://closed.com", "Closed"),
	})

	d, err := m.Diff("work", []types.TabRecord{
		// Same page, different query order: not a change.
		rec("https://kept.com/page?a=1&b=2", "Kept"),
		rec("https://new.com", "New"),
		rec("about:blank", "Blank"),
	})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if len(d.Added) != 1 || d.Added[0].URL != "https://new.com" {
		t.Errorf("Added = %+v, want only new.com", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0].URL != "https://closed.com" {
		t.Errorf("Removed = %+v, want only closed.com", d.Removed)
	}
}

func TestDiffUnknownWorkspace(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.Diff("nope", nil); err == nil {
		t.Fatal("expected an error for an unknown workspace")
	}
}

func TestMutationsBroadcast(t *testing.T) {
	f := hosttest.New()
	h := hub.New(nil)
	m := New(testStore(t), f, h, nil)
	t.Cleanup(m.Close)
	ch, cancel := h.Subscribe()
	defer cancel()

	m.Save("work", []types.TabRecord{rec("https://a.com", "A")})
	n := <-ch
	if n.Kind != hub.KindWorkspaceUpdated || n.Workspace != "work" {
		t.Errorf("after Save: notice = %+v, want workspace.updated for work", n)
	}

	m.Delete("work")
	n = <-ch
	if n.Kind != hub.KindWorkspaceUpdated {
		t.Errorf("after Delete: notice = %+v, want workspace.updated", n)
	}
}

func TestPersistsAcrossRestart(t *testing.T) {
	s := testStore(t)
	f := hosttest.New()

	m := New(s, f, hub.New(nil), nil)
	m.Save("work", []types.TabRecord{rec("https://a.com", "A")})
	m.Close()

	m2 := New(s, f, hub.New(nil), nil)
	defer m2.Close()
	ws, ok := m2.Get("work")
	if !ok || len(ws.Tabs) != 1 || ws.Tabs[0].URL != "https://a.com" {
		t.Fatalf("reloaded workspace = %+v, %v", ws, ok)
	}
}

func TestCorruptStateStartsEmpty(t *testing.T) {
	s := testStore(t)
	s.Set("workspaces", []byte("x"))

	m := New(s, hosttest.New(), hub.New(nil), nil)
	defer m.Close()
	if got := m.List(); len(got) != 0 {
		t.Errorf("expected no workspaces after corrupt load, got %+v", got)
	}
}
