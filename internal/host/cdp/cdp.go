// Package cdp drives a Chromium instance over the DevTools protocol as
// a host.Source. It attaches to a running browser through a devtools
// URL, or launches one itself. The protocol has no surface for tab
// groups, discard, mute or pin; those operations report
// host.ErrUnsupported and the engine degrades accordingly.
package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	protocol "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

// startTimeout bounds browser attach at Start. Covers both the exec
// launch and the first devtools round trip.
const startTimeout = 15 * time.Second

// soleWindowID is reported for every tab. The devtools protocol does
// not expose window membership without a per-target round trip.
const soleWindowID = 1

// Options selects and configures the browser to attach to.
type Options struct {
	// URL is a devtools endpoint such as ws://127.0.0.1:9222. When set,
	// the source attaches to that browser and never launches one.
	URL string

	// ExecPath overrides the browser binary for launched instances.
	ExecPath string

	// UserDataDir is the profile directory for launched instances.
	UserDataDir string

	// Headless launches without a window. Ignored when URL is set.
	Headless bool
}

// Source is a host.Source backed by the DevTools protocol. Target IDs
// are 32-hex strings on the wire; the source assigns each one a small
// integer tab ID and keeps the mapping for the lifetime of the target.
type Source struct {
	log  pslog.Logger
	opts Options

	mu          sync.Mutex
	ids         map[target.ID]int
	tids        map[int]target.ID
	nextID      int
	closed      bool
	started     bool
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelCtx   context.CancelFunc

	events chan host.Event
}

// New constructs a Source. Call Start before using it.
func New(o Options, logger pslog.Logger) *Source {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Source{
		log:    logger,
		opts:   o,
		ids:    make(map[target.ID]int),
		tids:   make(map[int]target.ID),
		nextID: 1,
		events: make(chan host.Event, 256),
	}
}

// Start attaches to the browser and enables target discovery. The
// launched or dialed browser outlives ctx; ctx only bounds the attach.
func (s *Source) Start(ctx context.Context) error {
	var allocCtx context.Context
	if s.opts.URL != "" {
		allocCtx, s.cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), s.opts.URL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", s.opts.Headless),
		)
		if s.opts.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(s.opts.ExecPath))
		}
		if s.opts.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(s.opts.UserDataDir))
		}
		allocCtx, s.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	s.browserCtx, s.cancelCtx = chromedp.NewContext(allocCtx)
	chromedp.ListenBrowser(s.browserCtx, s.onBrowserEvent)

	// Targets connects without opening a tab, unlike a bare Run.
	errCh := make(chan error, 1)
	go func() {
		_, err := chromedp.Targets(s.browserCtx)
		errCh <- err
	}()
	select {
	case err := <-errCh:
		if err != nil {
			s.Shutdown()
			return fmt.Errorf("attach browser: %w", err)
		}
	case <-time.After(startTimeout):
		s.Shutdown()
		return fmt.Errorf("attach browser: timed out after %s", startTimeout)
	case <-ctx.Done():
		s.Shutdown()
		return ctx.Err()
	}

	exec, err := s.executor(ctx)
	if err != nil {
		s.Shutdown()
		return err
	}
	if err := target.SetDiscoverTargets(true).Do(exec); err != nil {
		s.Shutdown()
		return fmt.Errorf("enable target discovery: %w", err)
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	if s.opts.URL != "" {
		s.log.Info("attached to browser", "url", s.opts.URL)
	} else {
		s.log.Info("launched browser", "headless", s.opts.Headless)
	}
	return nil
}

// Connected reports whether the browser is still attached.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed && s.browserCtx.Err() == nil
}

// Events returns the lifecycle event stream. It closes on Shutdown.
func (s *Source) Events() <-chan host.Event {
	return s.events
}

// Shutdown detaches from the browser and closes the event stream. A
// browser launched by Start is killed; a dialed one keeps running.
// Idempotent.
func (s *Source) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	if s.cancelCtx != nil {
		s.cancelCtx()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
}

// executor wraps ctx with the browser-level command executor.
func (s *Source) executor(ctx context.Context) (context.Context, error) {
	c := chromedp.FromContext(s.browserCtx)
	if c == nil || c.Browser == nil {
		return nil, host.ErrNotConnected
	}
	return protocol.WithExecutor(ctx, c.Browser), nil
}

// idFor returns the tab ID for a target, assigning the next integer on
// first sight.
func (s *Source) idFor(tid target.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[tid]; ok {
		return id
	}
	id := s.nextID
	s.nextID++
	s.ids[tid] = id
	s.tids[id] = tid
	return id
}

// targetFor resolves a tab ID back to its target. Unknown IDs report
// host.ErrNoTab.
func (s *Source) targetFor(tabID int) (target.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.tids[tabID]
	if !ok {
		return "", host.ErrNoTab
	}
	return tid, nil
}

// forget drops the mapping for a destroyed target and returns the tab
// ID it had, if any.
func (s *Source) forget(tid target.ID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[tid]
	if !ok {
		return 0, false
	}
	delete(s.ids, tid)
	delete(s.tids, id)
	return id, true
}

// isPage reports whether a target is an ordinary tab. Extension pages,
// workers, devtools windows and prerender targets are not.
func isPage(info *target.Info) bool {
	if info == nil || info.Type != "page" {
		return false
	}
	if info.Subtype != "" {
		return false
	}
	return !strings.HasPrefix(info.URL, "devtools://")
}

// record maps target metadata onto a tab record. The protocol reports
// no last-access time, group, pin or mute state.
func (s *Source) record(info *target.Info) types.TabRecord {
	return types.TabRecord{
		TabID:    s.idFor(info.TargetID),
		WindowID: soleWindowID,
		Title:    info.Title,
		URL:      info.URL,
		State:    types.StateBackground,
		GroupID:  types.NoGroup,
	}
}

// onBrowserEvent translates discovery notifications into lifecycle
// events. Runs on chromedp's dispatch goroutine and must not block.
func (s *Source) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if !isPage(e.TargetInfo) {
			return
		}
		rec := s.record(e.TargetInfo)
		s.emit(host.Event{Kind: host.EventCreated, TabID: rec.TabID, WindowID: rec.WindowID, Tab: &rec})
	case *target.EventTargetDestroyed:
		id, known := s.forget(e.TargetID)
		if !known {
			return
		}
		s.emit(host.Event{Kind: host.EventRemoved, TabID: id, WindowID: soleWindowID})
	case *target.EventTargetInfoChanged:
		if !isPage(e.TargetInfo) {
			return
		}
		s.mu.Lock()
		_, known := s.ids[e.TargetInfo.TargetID]
		s.mu.Unlock()
		if !known {
			// A prerender or portal promoted to a tab surfaces here
			// before any created notification.
			rec := s.record(e.TargetInfo)
			s.emit(host.Event{Kind: host.EventCreated, TabID: rec.TabID, WindowID: rec.WindowID, Tab: &rec})
			return
		}
		rec := s.record(e.TargetInfo)
		title, url := rec.Title, rec.URL
		s.emit(host.Event{
			Kind:     host.EventUpdated,
			TabID:    rec.TabID,
			WindowID: rec.WindowID,
			Delta:    &host.TabDelta{Title: &title, URL: &url},
		})
	case *target.EventTargetCrashed:
		s.log.Warn("browser target crashed", "targetId", string(e.TargetID), "status", e.Status)
	}
}

// emit delivers an event without blocking chromedp's dispatcher.
func (s *Source) emit(ev host.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("lifecycle event dropped, pipeline backlogged", "kind", ev.Kind.String())
	}
}

// mapTargetErr folds Chrome's missing-target error into host.ErrNoTab.
// Chrome reports it as "No target with given id found".
func mapTargetErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "target with given id") {
		return host.ErrNoTab
	}
	return err
}
