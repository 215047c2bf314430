// Package suspend discards long-idle background tabs to reclaim host
// memory.
package suspend

import (
	"context"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/registry"
	"github.com/krail/tabwarden/internal/types"
)

const tickPeriod = 5 * time.Minute

// Scheduler scans the registry for idle tabs and asks the host to
// discard them. Gated by the autoSuspend setting; best effort only.
// Per-tab failures are logged and skipped, and a pass never returns an
// error to its caller.
type Scheduler struct {
	reg      *registry.Registry
	src      host.Source
	hub      *hub.Hub
	settings func() types.Settings
	log      pslog.Logger
}

// New returns a Scheduler. settings is called at the start of every
// pass so setting changes take effect without a restart.
func New(reg *registry.Registry, src host.Source, h *hub.Hub, settings func() types.Settings, logger pslog.Logger) *Scheduler {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Scheduler{reg: reg, src: src, hub: h, settings: settings, log: logger}
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
			s.Sweep(ctx)
		}
	}
}

// Sweep discards every eligible idle tab and returns how many were
// discarded. Eligible means a background record that is not pinned or
// audible and has been idle past the configured threshold. Candidates
// are re-fetched from the host before the discard, so a tab that was
// closed, discarded, or activated since the registry scan is left
// alone.
func (s *Scheduler) Sweep(ctx context.Context) int {
	cfg := s.settings()
	if !cfg.AutoSuspend || cfg.AutoSuspendMinutes <= 0 {
		return 0
	}
	threshold := (time.Duration(cfg.AutoSuspendMinutes) * time.Minute).Milliseconds()

	now := time.Now().UnixMilli()
	discarded := 0
	for _, rec := range s.reg.All() {
		if rec.State != types.StateBackground || rec.Pinned || rec.Audible {
			continue
		}
		if now-rec.LastAccessed < threshold {
			continue
		}
		live, err := s.src.Tab(ctx, rec.TabID)
		if err != nil {
			s.log.Debug("suspend candidate gone", "tab", rec.TabID, "err", err)
			continue
		}
		if live.State == types.StateDiscarded {
			continue
		}
		if active, ok := s.reg.Active(); ok && active.TabID == rec.TabID {
			continue
		}
		if err := s.src.Discard(ctx, rec.TabID); err != nil {
			s.log.Warn("discard failed", "tab", rec.TabID, "err", err)
			continue
		}
		isDiscarded := true
		s.reg.Patch(rec.TabID, host.TabDelta{Discarded: &isDiscarded})
		discarded++
	}

	if discarded > 0 {
		s.log.Info("suspend pass", "discarded", discarded)
		s.hub.Broadcast(hub.Notice{Kind: hub.KindTabsChanged})
	}
	return discarded
}
