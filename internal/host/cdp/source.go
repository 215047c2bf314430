package cdp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

// captureQuality is the JPEG quality for thumbnail screenshots.
const captureQuality = 60

// Snapshot enumerates every page target in one round trip. The protocol
// reports no group metadata.
func (s *Source) Snapshot(ctx context.Context) (host.Snapshot, error) {
	exec, err := s.executor(ctx)
	if err != nil {
		return host.Snapshot{}, err
	}
	infos, err := target.GetTargets().Do(exec)
	if err != nil {
		return host.Snapshot{}, fmt.Errorf("enumerate targets: %w", err)
	}
	snap := host.Snapshot{CurrentWindowID: soleWindowID}
	for _, info := range infos {
		if !isPage(info) {
			continue
		}
		snap.Tabs = append(snap.Tabs, s.record(info))
	}
	return snap, nil
}

// Tab fetches a single target's metadata.
func (s *Source) Tab(ctx context.Context, tabID int) (types.TabRecord, error) {
	tid, err := s.targetFor(tabID)
	if err != nil {
		return types.TabRecord{}, err
	}
	exec, err := s.executor(ctx)
	if err != nil {
		return types.TabRecord{}, err
	}
	info, err := target.GetTargetInfo().WithTargetID(tid).Do(exec)
	if err != nil {
		return types.TabRecord{}, mapTargetErr(err)
	}
	return s.record(info), nil
}

// Activate raises the target. The protocol sends no activation
// notification back, so the source synthesizes one; the registry's MRU
// update flows through the same event path as with an extension host.
func (s *Source) Activate(ctx context.Context, tabID int) error {
	tid, err := s.targetFor(tabID)
	if err != nil {
		return err
	}
	exec, err := s.executor(ctx)
	if err != nil {
		return err
	}
	if err := target.ActivateTarget(tid).Do(exec); err != nil {
		return mapTargetErr(err)
	}
	s.emit(host.Event{Kind: host.EventActivated, TabID: tabID, WindowID: soleWindowID})
	return nil
}

// Close destroys the given targets. Unknown and already-gone tabs are
// skipped.
func (s *Source) Close(ctx context.Context, tabIDs ...int) error {
	exec, err := s.executor(ctx)
	if err != nil {
		return err
	}
	for _, id := range tabIDs {
		tid, err := s.targetFor(id)
		if err != nil {
			continue
		}
		if err := target.CloseTarget(tid).Do(exec); err != nil {
			if mapTargetErr(err) == host.ErrNoTab {
				continue
			}
			return fmt.Errorf("close tab %d: %w", id, err)
		}
	}
	return nil
}

// Create opens a new target. Pinning is not expressible over the
// protocol and is ignored.
func (s *Source) Create(ctx context.Context, opts host.CreateOpts) error {
	exec, err := s.executor(ctx)
	if err != nil {
		return err
	}
	url := opts.URL
	if url == "" {
		url = "about:blank"
	}
	if opts.Pinned {
		s.log.Debug("pin requested on create, not supported over devtools", "url", url)
	}
	tid, err := target.CreateTarget(url).WithBackground(!opts.Active).Do(exec)
	if err != nil {
		return fmt.Errorf("create tab: %w", err)
	}
	s.idFor(tid)
	return nil
}

// Update reports ErrUnsupported; the protocol exposes neither pinning
// nor muting.
func (s *Source) Update(ctx context.Context, tabID int, opts host.UpdateOpts) error {
	return host.ErrUnsupported
}

// Discard reports ErrUnsupported.
func (s *Source) Discard(ctx context.Context, tabID int) error {
	return host.ErrUnsupported
}

// Move reports ErrUnsupported; targets have no strip order.
func (s *Source) Move(ctx context.Context, tabID, index int) error {
	return host.ErrUnsupported
}

// Group reports ErrUnsupported.
func (s *Source) Group(ctx context.Context, tabIDs []int, title, color string) (int, error) {
	return 0, host.ErrUnsupported
}

// Ungroup reports ErrUnsupported.
func (s *Source) Ungroup(ctx context.Context, tabIDs []int) error {
	return host.ErrUnsupported
}

// Groups reports ErrUnsupported.
func (s *Source) Groups(ctx context.Context, groupIDs ...int) ([]types.TabGroup, error) {
	return nil, host.ErrUnsupported
}

// Capture screenshots the target's viewport through a short-lived
// session and returns it as a JPEG data URL. Unlike an extension host,
// the target does not need to be the visible one.
func (s *Source) Capture(ctx context.Context, tabID, windowID int) (string, error) {
	tid, err := s.targetFor(tabID)
	if err != nil {
		return "", err
	}
	tctx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(tid))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var buf []byte
	err = chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(captureQuality).
			Do(ctx)
		return err
	}))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", mapTargetErr(err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf), nil
}
