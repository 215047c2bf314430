package suspend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/krail/tabwarden/internal/host/hosttest"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/registry"
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

func testScheduler(t *testing.T, cfg types.Settings) (*Scheduler, *registry.Registry, *hosttest.Fake) {
	t.Helper()
	f := hosttest.New()
	reg := registry.New(testStore(t), f, nil)
	t.Cleanup(reg.Close)
	s := New(reg, f, hub.New(nil), func() types.Settings { return cfg }, nil)
	return s, reg, f
}

func minutesAgo(m int) int64 {
	return time.Now().UnixMilli() - int64(m)*60_000
}

func TestSweepDiscardsIdleTabs(t *testing.T) {
	s, reg, f := testScheduler(t, types.Settings{AutoSuspend: true, AutoSuspendMinutes: 30})
	recs := []types.TabRecord{
		{TabID: 1, WindowID: 1, URL: "https://old.com", State: types.StateBackground, LastAccessed: minutesAgo(40), GroupID: types.NoGroup},
		{TabID: 2, WindowID: 1, URL: "https://fresh.com", State: types.StateBackground, LastAccessed: minutesAgo(10), GroupID: types.NoGroup},
	}
	f.SetTabs(recs...)
	reg.AppendMissing(recs)

	if got := s.Sweep(context.Background()); got != 1 {
		t.Fatalf("Sweep = %d, want 1", got)
	}
	if ids := f.DiscardedIDs(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("discarded = %v, want [1]", ids)
	}
	if rec, _ := reg.Get(1); rec.State != types.StateDiscarded {
		t.Errorf("tab 1 state = %s, want discarded", rec.State)
	}
	if rec, _ := reg.Get(2); rec.State != types.StateBackground {
		t.Errorf("tab 2 state = %s, want background", rec.State)
	}
}

func TestSweepDisabled(t *testing.T) {
	s, reg, f := testScheduler(t, types.Settings{AutoSuspend: false, AutoSuspendMinutes: 30})
	recs := []types.TabRecord{
		{TabID: 1, URL: "https://old.com", State: types.StateBackground, LastAccessed: minutesAgo(300), GroupID: types.NoGroup},
	}
	f.SetTabs(recs...)
	reg.AppendMissing(recs)

	if got := s.Sweep(context.Background()); got != 0 {
		t.Errorf("Sweep = %d, want 0 when disabled", got)
	}
	if ids := f.DiscardedIDs(); len(ids) != 0 {
		t.Errorf("discarded = %v, want none", ids)
	}
}

func TestSweepSkipsProtectedTabs(t *testing.T) {
	s, reg, f := testScheduler(t, types.Settings{AutoSuspend: true, AutoSuspendMinutes: 30})
	recs := []types.TabRecord{
		{TabID: 1, URL: "https://active.com", State: types.StateActive, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
		{TabID: 2, URL: "https://pinned.com", State: types.StateBackground, Pinned: true, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
		{TabID: 3, URL: "https://music.com", State: types.StateBackground, Audible: true, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
		{TabID: 4, URL: "https://done.com", State: types.StateDiscarded, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
	}
	f.SetTabs(recs...)
	reg.AppendMissing(recs)

	if got := s.Sweep(context.Background()); got != 0 {
		t.Errorf("Sweep = %d, want 0", got)
	}
	if ids := f.DiscardedIDs(); len(ids) != 0 {
		t.Errorf("discarded = %v, want none", ids)
	}
}

func TestSweepTrustsLiveStateOverRegistry(t *testing.T) {
	s, reg, f := testScheduler(t, types.Settings{AutoSuspend: true, AutoSuspendMinutes: 30})
	// The registry is behind: the host already discarded this tab.
	reg.AppendMissing([]types.TabRecord{
		{TabID: 1, URL: "https://a.com", State: types.StateBackground, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
	})
	f.SetTabs(types.TabRecord{TabID: 1, URL: "https://a.com", State: types.StateDiscarded, GroupID: types.NoGroup})

	if got := s.Sweep(context.Background()); got != 0 {
		t.Errorf("Sweep = %d, want 0", got)
	}
	if ids := f.DiscardedIDs(); len(ids) != 0 {
		t.Errorf("discarded = %v, want none", ids)
	}
}

func TestSweepSkipsTabClosedSinceScan(t *testing.T) {
	s, reg, _ := testScheduler(t, types.Settings{AutoSuspend: true, AutoSuspendMinutes: 30})
	// Registry record with no live counterpart.
	reg.AppendMissing([]types.TabRecord{
		{TabID: 9, URL: "https://gone.com", State: types.StateBackground, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
	})

	if got := s.Sweep(context.Background()); got != 0 {
		t.Errorf("Sweep = %d, want 0", got)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	s, reg, f := testScheduler(t, types.Settings{AutoSuspend: true, AutoSuspendMinutes: 30})
	recs := []types.TabRecord{
		{TabID: 1, URL: "https://a.com", State: types.StateBackground, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
		{TabID: 2, URL: "https://b.com", State: types.StateBackground, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
	}
	f.SetTabs(recs...)
	reg.AppendMissing(recs)
	f.DiscardErr = errors.New("host rejected")

	if got := s.Sweep(context.Background()); got != 0 {
		t.Errorf("Sweep = %d, want 0 when every discard fails", got)
	}
	for _, id := range []int{1, 2} {
		if rec, _ := reg.Get(id); rec.State != types.StateBackground {
			t.Errorf("tab %d state = %s, want background after failed discard", id, rec.State)
		}
	}
}

func TestSweepBroadcastsOnChange(t *testing.T) {
	f := hosttest.New()
	reg := registry.New(testStore(t), f, nil)
	t.Cleanup(reg.Close)
	h := hub.New(nil)
	ch, cancel := h.Subscribe()
	defer cancel()
	s := New(reg, f, h, func() types.Settings {
		return types.Settings{AutoSuspend: true, AutoSuspendMinutes: 30}
	}, nil)

	// Nothing eligible: no notice.
	s.Sweep(context.Background())
	select {
	case n := <-ch:
		t.Fatalf("unexpected notice %v from empty sweep", n.Kind)
	default:
	}

	recs := []types.TabRecord{
		{TabID: 1, URL: "https://a.com", State: types.StateBackground, LastAccessed: minutesAgo(60), GroupID: types.NoGroup},
	}
	f.SetTabs(recs...)
	reg.AppendMissing(recs)
	s.Sweep(context.Background())
	select {
	case n := <-ch:
		if n.Kind != hub.KindTabsChanged {
			t.Errorf("notice = %v, want tabs.changed", n.Kind)
		}
	default:
		t.Fatal("expected a tabs.changed notice after a discard")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := testScheduler(t, types.Settings{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
