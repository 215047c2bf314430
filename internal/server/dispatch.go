package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/types"
	"github.com/krail/tabwarden/internal/workspace"
)

// defaultFrecentCount is returned by get-frecent when the request does
// not say how many entries it wants.
const defaultFrecentCount = 20

// uiRequest is one overlay command. Fields beyond ID and Action are
// action-specific and stay zero elsewhere.
type uiRequest struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	TabID      int             `json:"tabId,omitempty"`
	TabIDs     []int           `json:"tabIds,omitempty"`
	Index      int             `json:"index,omitempty"`
	Pinned     bool            `json:"pinned,omitempty"`
	Muted      bool            `json:"muted,omitempty"`
	URL        string          `json:"url,omitempty"`
	Title      string          `json:"title,omitempty"`
	Color      string          `json:"color,omitempty"`
	FaviconURL string          `json:"favIconUrl,omitempty"`
	Text       string          `json:"text,omitempty"`
	Name       string          `json:"name,omitempty"`
	Count      int             `json:"count,omitempty"`
	DurationMs int64           `json:"durationMs,omitempty"`
	WakeAt     int64           `json:"wakeAt,omitempty"`
	Settings   *types.Settings `json:"settings,omitempty"`
}

// uiResponse is the reply to one overlay command. Every payload leg
// lives in this one struct; unused legs are omitted from the wire.
type uiResponse struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Tabs            []types.TabRecord     `json:"tabs,omitempty"`
	CurrentWindowID int                   `json:"currentWindowId,omitempty"`
	GroupID         int                   `json:"groupId,omitempty"`
	Snoozed         []types.SnoozedTab    `json:"snoozed,omitempty"`
	Count           int                   `json:"count,omitempty"`
	Thumbnails      map[int]string        `json:"thumbnails,omitempty"`
	Frecent         []types.FrecencyEntry `json:"frecent,omitempty"`
	Notes           map[string]types.Note `json:"notes,omitempty"`
	Bookmarks       []types.Bookmark      `json:"bookmarks,omitempty"`
	Workspace       *types.Workspace      `json:"workspace,omitempty"`
	Workspaces      []types.Workspace     `json:"workspaces,omitempty"`
	Diff            *workspace.DiffResult `json:"diff,omitempty"`
	Settings        *types.Settings       `json:"settings,omitempty"`
}

// uiEvent is one hub notice framed for overlay clients. Clients tell
// events from replies by the presence of "type" instead of "id".
type uiEvent struct {
	Type      string           `json:"type"`
	Tab       *types.TabRecord `json:"tab,omitempty"`
	TabID     int              `json:"tabId,omitempty"`
	Workspace string           `json:"workspace,omitempty"`
	Settings  *types.Settings  `json:"settings,omitempty"`
}

func noticeFrame(n hub.Notice) uiEvent {
	return uiEvent{
		Type:      string(n.Kind),
		Tab:       n.Tab,
		TabID:     n.TabID,
		Workspace: n.Workspace,
		Settings:  n.Settings,
	}
}

func okResp(id string) uiResponse {
	return uiResponse{ID: id, OK: true}
}

func errResp(id string, err error) uiResponse {
	return uiResponse{ID: id, Error: err.Error()}
}

// dispatch maps one overlay action onto the engine.
func (s *Server) dispatch(ctx context.Context, req uiRequest) uiResponse {
	s.log.Debug("ui request", "action", req.Action, "id", req.ID)
	switch req.Action {
	case "get-tabs":
		view, err := s.eng.Tabs(ctx)
		if err != nil {
			return errResp(req.ID, err)
		}
		r := okResp(req.ID)
		r.Tabs = view.Tabs
		r.CurrentWindowID = view.CurrentWindowID
		return r

	case "switch-tab":
		if err := s.eng.Switch(ctx, req.TabID); err != nil {
			return errResp(req.ID, err)
		}
		return okResp(req.ID)

	case "close-tab":
		if err := s.eng.CloseTabs(ctx, req.TabID); err != nil {
			return errResp(req.ID, err)
		}
		return okResp(req.ID)

	case "close-tabs":
		if err := s.eng.CloseTabs(ctx, req.TabIDs...); err != nil {
			return errResp(req.ID, err)
		}
		return okResp(req.ID)

	case "pin-tab":
		if err := s.eng.SetPinned(ctx, req.TabID, req.Pinned); err != nil {
			return errResp(req.ID, err)
		}
		return okResp(req.ID)

	case "mute-tab":
		if err := s.eng.SetMuted(ctx, req.TabID, req.Muted); err != nil {
			return errResp(req.ID, err)
		}
		return okResp(req.ID)

	case "group-tabs":
		gid, err := s.eng.GroupTabs(ctx, req.TabIDs, req.Title, req.Color)
		if err != nil {
			return errResp(req.ID, err)
		}
		r := okResp(req.ID)
		r.GroupID = gid
		return r

	case "ungroup-tabs":
		if err := s.eng.UngroupTabs(ctx, req.TabIDs); err != nil {
			return errResp(req.ID, err)
		}
		return okResp(req.ID)

	case "move-tab":
		if err := s.eng.MoveTab(ctx, req.TabID, req.Index); err != nil {
			return errResp(req.ID, err)
		}
		return okResp(req.ID)

	case "snooze-tab":
		if req.DurationMs <= 0 {
			return errResp(req.ID, errors.New("snooze-tab: durationMs must be positive"))
		}
		r := okResp(req.ID)
		r.Snoozed = s.eng.SnoozeTab(ctx, req.TabID, req.URL, req.Title, req.FaviconURL, req.DurationMs)
		return r

	case "get-snoozed":
		r := okResp(req.ID)
		r.Snoozed = s.eng.Snoozed()
		return r

	case "cancel-snooze":
		r := okResp(req.ID)
		r.Snoozed = s.eng.CancelSnooze(req.URL, req.WakeAt)
		return r

	case "wake-snooze":
		r := okResp(req.ID)
		r.Snoozed = s.eng.WakeSnooze(ctx, req.URL, req.WakeAt)
		return r

	case "suspend-tabs":
		r := okResp(req.ID)
		r.Count = s.eng.SuspendTabs(ctx, req.TabIDs)
		return r

	case "dedupe-tabs":
		n, err := s.eng.DedupeTabs(ctx)
		if err != nil {
			return errResp(req.ID, err)
		}
		r := okResp(req.ID)
		r.Count = n
		return r

	case "get-all-thumbnails":
		r := okResp(req.ID)
		r.Thumbnails = s.eng.Thumbnails()
		return r

	case "hud-opened":
		s.eng.HUDOpened()
		return okResp(req.ID)

	case "hud-closed":
		s.eng.HUDClosed()
		return okResp(req.ID)

	case "get-frecent":
		n := req.Count
		if n <= 0 {
			n = defaultFrecentCount
		}
		r := okResp(req.ID)
		r.Frecent = s.eng.Frecent(n)
		return r

	case "get-notes":
		r := okResp(req.ID)
		r.Notes = s.eng.Notes()
		return r

	case "set-note":
		if req.URL == "" {
			return errResp(req.ID, errors.New("set-note: missing url"))
		}
		s.eng.SetNote(req.URL, req.Text)
		return okResp(req.ID)

	case "get-bookmarks":
		r := okResp(req.ID)
		r.Bookmarks = s.eng.Bookmarks()
		return r

	case "add-bookmark":
		if req.URL == "" {
			return errResp(req.ID, errors.New("add-bookmark: missing url"))
		}
		s.eng.AddBookmark(req.URL, req.Title, req.FaviconURL)
		return okResp(req.ID)

	case "remove-bookmark":
		s.eng.RemoveBookmark(req.URL)
		return okResp(req.ID)

	case "save-workspace":
		ws, err := s.eng.SaveWorkspace(ctx, req.Name)
		if err != nil {
			return errResp(req.ID, err)
		}
		r := okResp(req.ID)
		r.Workspace = &ws
		return r

	case "get-workspaces":
		r := okResp(req.ID)
		r.Workspaces = s.eng.Workspaces()
		return r

	case "open-workspace":
		n, err := s.eng.OpenWorkspace(ctx, req.Name)
		if err != nil {
			return errResp(req.ID, err)
		}
		r := okResp(req.ID)
		r.Count = n
		return r

	case "delete-workspace":
		s.eng.DeleteWorkspace(req.Name)
		return okResp(req.ID)

	case "diff-workspace":
		d, err := s.eng.DiffWorkspace(ctx, req.Name)
		if err != nil {
			return errResp(req.ID, err)
		}
		r := okResp(req.ID)
		r.Diff = d
		return r

	case "get-settings":
		st := s.eng.Settings()
		r := okResp(req.ID)
		r.Settings = &st
		return r

	case "set-settings":
		if req.Settings == nil {
			return errResp(req.ID, errors.New("set-settings: missing settings"))
		}
		s.eng.SetSettings(*req.Settings)
		return okResp(req.ID)

	default:
		return errResp(req.ID, fmt.Errorf("unknown action %q", req.Action))
	}
}
