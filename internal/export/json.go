package export

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/krail/tabwarden/internal/types"
)

type jsonExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	TabCount   int          `json:"tab_count"`
	Windows    []jsonWindow `json:"windows"`
}

type jsonWindow struct {
	ID   int       `json:"id"`
	Tabs []jsonTab `json:"tabs"`
}

type jsonTab struct {
	Title              string `json:"title"`
	URL                string `json:"url"`
	Domain             string `json:"domain"`
	State              string `json:"state"`
	Pinned             bool   `json:"pinned,omitempty"`
	Muted              bool   `json:"muted,omitempty"`
	Group              string `json:"group,omitempty"`
	LastAccessed       int64  `json:"last_accessed,omitempty"`
	LastAccessedPretty string `json:"last_accessed_pretty,omitempty"`
}

// JSON formats a reconciled tab list as an indented JSON document,
// windows in first-seen order.
func JSON(tabs []types.TabRecord) (string, error) {
	out := jsonExport{
		ExportedAt: time.Now(),
		TabCount:   len(tabs),
		Windows:    make([]jsonWindow, 0, 1),
	}

	for _, w := range windowIDs(tabs) {
		win := jsonWindow{ID: w}
		for _, tab := range windowTabs(tabs, w) {
			jt := jsonTab{
				Title:        tab.Title,
				URL:          tab.URL,
				Domain:       extractDomain(tab.URL),
				State:        string(tab.State),
				Pinned:       tab.Pinned,
				Muted:        tab.Muted,
				LastAccessed: tab.LastAccessed,
			}
			if tab.GroupID != types.NoGroup {
				jt.Group = groupHeading(tab)
			}
			if tab.LastAccessed > 0 {
				jt.LastAccessedPretty = relativeTime(tab.LastAccessed)
			}
			win.Tabs = append(win.Tabs, jt)
		}
		out.Windows = append(out.Windows, win)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}
