// Package engine ties the registry, schedulers, caches, and the host
// source together. It runs the lifecycle event pipeline and exposes the
// operations the UI protocol is built on.
package engine

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/bookmarks"
	"github.com/krail/tabwarden/internal/frecency"
	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/notes"
	"github.com/krail/tabwarden/internal/registry"
	"github.com/krail/tabwarden/internal/snooze"
	"github.com/krail/tabwarden/internal/store"
	"github.com/krail/tabwarden/internal/suspend"
	"github.com/krail/tabwarden/internal/thumbs"
	"github.com/krail/tabwarden/internal/types"
	"github.com/krail/tabwarden/internal/workspace"
)

const (
	settingsKey = "settings"

	// dwellMin filters sub-second activations out of the focus
	// analytics; flicking through tabs is not reading them.
	dwellMin = time.Second

	// A tab can still be rendering when activation fires, so every
	// activation capture gets one delayed second attempt.
	captureRetryDelay = 2 * time.Second

	// Delay between a page finishing its load and the recapture, so
	// the shot is of the settled page.
	recaptureDelay = 1200 * time.Millisecond

	captureTimeout = 10 * time.Second
)

// Engine is the coordination point between the host browser and every
// engine-side component.
type Engine struct {
	src host.Source
	hub *hub.Hub
	log pslog.Logger

	reg     *registry.Registry
	rec     *registry.Reconciler
	frec    *frecency.Tracker
	snoozed *snooze.List
	thumbs  *thumbs.Cache
	notes   *notes.Notes
	marks   *bookmarks.List
	spaces  *workspace.Manager

	snoozeSched  *snooze.Scheduler
	suspendSched *suspend.Scheduler

	settingsMu    sync.Mutex
	settings      types.Settings
	settingsFlush *store.Flusher

	// focusSince is when the current active tab gained focus; the next
	// activation turns it into a dwell measurement.
	focusMu    sync.Mutex
	focusSince time.Time

	retryDelay    time.Duration
	recaptureWait time.Duration
}

// New assembles the engine and loads all persisted state from s.
func New(s store.Store, src host.Source, h *hub.Hub, logger pslog.Logger) *Engine {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	e := &Engine{
		src:           src,
		hub:           h,
		log:           logger,
		retryDelay:    captureRetryDelay,
		recaptureWait: recaptureDelay,
	}
	e.reg = registry.New(s, src, logger)
	e.rec = registry.NewReconciler(e.reg, src, logger)
	e.frec = frecency.NewTracker(s, logger)
	e.snoozed = snooze.NewList(s, logger)
	e.thumbs = thumbs.New(s, src, logger)
	e.notes = notes.New(s, logger)
	e.marks = bookmarks.New(s, logger)
	e.spaces = workspace.New(s, src, h, logger)

	e.settings = types.DefaultSettings()
	if _, err := store.LoadJSON(s, settingsKey, &e.settings); err != nil {
		logger.Warn("settings unreadable, using defaults", "err", err)
		e.settings = types.DefaultSettings()
	}
	e.settingsFlush = store.NewFlusher(s, settingsKey, e.settingsSnapshot, logger)

	e.snoozeSched = snooze.NewScheduler(e.snoozed, src, h, logger)
	e.suspendSched = suspend.New(e.reg, src, h, e.Settings, logger)
	return e
}

// Run starts both schedulers and consumes host events until the context
// is cancelled or the event stream closes.
func (e *Engine) Run(ctx context.Context) {
	go e.snoozeSched.Run(ctx)
	go e.suspendSched.Run(ctx)

	events := e.src.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleEvent(ctx, ev)
		}
	}
}

// Close flushes every component's pending writes.
func (e *Engine) Close() {
	e.marks.Close()
	e.spaces.Close()
	e.notes.Close()
	e.thumbs.Close()
	e.snoozed.Close()
	e.frec.Close()
	e.reg.Close()
	e.settingsFlush.Close()
}

func (e *Engine) settingsSnapshot() any {
	return e.Settings()
}
