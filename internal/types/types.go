package types

// TabState classifies a tab's lifecycle position. A tab is in exactly one
// state at a time; pinned, audible and muted are orthogonal attributes.
type TabState string

const (
	StateActive     TabState = "active"
	StateBackground TabState = "background"
	StateDiscarded  TabState = "discarded"
)

// NoGroup is the group ID of an ungrouped tab.
const NoGroup = -1

// TabRecord is the engine's view of one browser tab, keyed by the
// host-assigned tab ID.
type TabRecord struct {
	TabID        int      `json:"tabId"`
	WindowID     int      `json:"windowId"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	FaviconURL   string   `json:"favIconUrl,omitempty"`
	LastAccessed int64    `json:"lastAccessed"` // epoch ms
	State        TabState `json:"state"`
	Pinned       bool     `json:"pinned,omitempty"`
	Audible      bool     `json:"audible,omitempty"`
	Muted        bool     `json:"muted,omitempty"`
	GroupID      int      `json:"groupId"` // NoGroup when ungrouped
	GroupTitle   string   `json:"groupTitle,omitempty"`
	GroupColor   string   `json:"groupColor,omitempty"`
}

// TabGroup is host-side tab group metadata.
type TabGroup struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed,omitempty"`
}

// SnoozedTab is a closed tab scheduled to reopen at WakeAt. Identity for
// cancellation is the (URL, WakeAt) pair.
type SnoozedTab struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	FaviconURL string `json:"favIconUrl,omitempty"`
	SnoozedAt  int64  `json:"snoozedAt"` // epoch ms
	WakeAt     int64  `json:"wakeAt"`    // epoch ms
}

// FrecencyEntry accumulates visit history for one URL.
type FrecencyEntry struct {
	URL        string `json:"url"`
	VisitCount int    `json:"visitCount"`
	LastVisit  int64  `json:"lastVisit"` // epoch ms
	FocusMs    int64  `json:"focusMs,omitempty"`
}

// Note is free-form text attached to a normalized URL.
type Note struct {
	Text      string `json:"text"`
	UpdatedAt int64  `json:"updatedAt"` // epoch ms
}

// Bookmark is a saved page. Excerpt and SiteName are filled in
// asynchronously after the bookmark is added.
type Bookmark struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	FaviconURL string `json:"favIconUrl,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
	SiteName   string `json:"siteName,omitempty"`
	AddedAt    int64  `json:"addedAt"` // epoch ms
}

// WorkspaceTab is one saved tab inside a workspace.
type WorkspaceTab struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Pinned     bool   `json:"pinned,omitempty"`
	GroupTitle string `json:"groupTitle,omitempty"`
	GroupColor string `json:"groupColor,omitempty"`
}

// Workspace is a named set of tabs saved from a live window layout.
// Saving under an existing name overwrites it.
type Workspace struct {
	Name      string         `json:"name"`
	CreatedAt int64          `json:"createdAt"` // epoch ms
	UpdatedAt int64          `json:"updatedAt"` // epoch ms
	Tabs      []WorkspaceTab `json:"tabs"`
}

// Settings are the user-tunable engine knobs, persisted as one blob.
type Settings struct {
	AutoSuspend        bool `json:"autoSuspend"`
	AutoSuspendMinutes int  `json:"autoSuspendMinutes"`
}

// DefaultSettings returns the settings used before the user has saved any.
func DefaultSettings() Settings {
	return Settings{AutoSuspend: false, AutoSuspendMinutes: 30}
}
