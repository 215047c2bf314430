package extbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/types"
)

// Snapshot enumerates the browser in one query-tabs round trip. The
// response carries tabs, group metadata and the focused window together
// so the result is a consistent point-in-time view.
func (b *Bridge) Snapshot(ctx context.Context) (host.Snapshot, error) {
	resp, err := b.roundTrip(ctx, outgoingCmd{Action: "query-tabs"})
	if err != nil {
		return host.Snapshot{}, err
	}

	var tabs []wireTab
	if err := json.Unmarshal(resp.Tabs, &tabs); err != nil {
		return host.Snapshot{}, fmt.Errorf("parse tabs: %w", err)
	}
	var groups []wireGroup
	if len(resp.Groups) > 0 {
		if err := json.Unmarshal(resp.Groups, &groups); err != nil {
			return host.Snapshot{}, fmt.Errorf("parse groups: %w", err)
		}
	}

	snap := host.Snapshot{CurrentWindowID: resp.WindowID}
	for _, wt := range tabs {
		snap.Tabs = append(snap.Tabs, wt.record())
	}
	for _, wg := range groups {
		snap.Groups = append(snap.Groups, wg.group())
	}
	return snap, nil
}

func (b *Bridge) Tab(ctx context.Context, tabID int) (types.TabRecord, error) {
	resp, err := b.roundTrip(ctx, outgoingCmd{Action: "query-tab", TabID: tabID})
	if err != nil {
		return types.TabRecord{}, err
	}
	var wt wireTab
	if err := json.Unmarshal(resp.Tab, &wt); err != nil {
		return types.TabRecord{}, fmt.Errorf("parse tab: %w", err)
	}
	return wt.record(), nil
}

func (b *Bridge) Activate(ctx context.Context, tabID int) error {
	_, err := b.roundTrip(ctx, outgoingCmd{Action: "activate-tab", TabID: tabID})
	return err
}

func (b *Bridge) Close(ctx context.Context, tabIDs ...int) error {
	_, err := b.roundTrip(ctx, outgoingCmd{Action: "remove-tabs", TabIDs: tabIDs})
	return err
}

func (b *Bridge) Create(ctx context.Context, opts host.CreateOpts) error {
	cmd := outgoingCmd{Action: "create-tab", URL: opts.URL, Active: opts.Active}
	if opts.Pinned {
		pinned := true
		cmd.Pinned = &pinned
	}
	_, err := b.roundTrip(ctx, cmd)
	return err
}

func (b *Bridge) Update(ctx context.Context, tabID int, opts host.UpdateOpts) error {
	_, err := b.roundTrip(ctx, outgoingCmd{
		Action: "update-tab",
		TabID:  tabID,
		Pinned: opts.Pinned,
		Muted:  opts.Muted,
	})
	return err
}

func (b *Bridge) Discard(ctx context.Context, tabID int) error {
	_, err := b.roundTrip(ctx, outgoingCmd{Action: "discard-tab", TabID: tabID})
	return err
}

func (b *Bridge) Move(ctx context.Context, tabID, index int) error {
	_, err := b.roundTrip(ctx, outgoingCmd{Action: "move-tab", TabID: tabID, Index: &index})
	return err
}

func (b *Bridge) Group(ctx context.Context, tabIDs []int, title, color string) (int, error) {
	resp, err := b.roundTrip(ctx, outgoingCmd{
		Action: "group-tabs",
		TabIDs: tabIDs,
		Title:  title,
		Color:  color,
	})
	if err != nil {
		return 0, err
	}
	return resp.GroupID, nil
}

func (b *Bridge) Ungroup(ctx context.Context, tabIDs []int) error {
	_, err := b.roundTrip(ctx, outgoingCmd{Action: "ungroup-tabs", TabIDs: tabIDs})
	return err
}

func (b *Bridge) Groups(ctx context.Context, groupIDs ...int) ([]types.TabGroup, error) {
	resp, err := b.roundTrip(ctx, outgoingCmd{Action: "query-groups", GroupIDs: groupIDs})
	if err != nil {
		return nil, err
	}
	var groups []wireGroup
	if len(resp.Groups) > 0 {
		if err := json.Unmarshal(resp.Groups, &groups); err != nil {
			return nil, fmt.Errorf("parse groups: %w", err)
		}
	}
	out := make([]types.TabGroup, 0, len(groups))
	for _, wg := range groups {
		out = append(out, wg.group())
	}
	return out, nil
}

func (b *Bridge) Capture(ctx context.Context, tabID, windowID int) (string, error) {
	resp, err := b.roundTrip(ctx, outgoingCmd{Action: "capture-tab", TabID: tabID, WindowID: windowID})
	if err != nil {
		return "", err
	}
	return resp.Image, nil
}
