package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/krail/tabwarden/internal/types"
)

// Markdown formats a reconciled tab list as a markdown document:
// one section per window, grouped tabs under their group heading,
// ungrouped tabs directly under the window. Tab order inside each
// section follows the input, which the engine hands over most recently
// used first.
func Markdown(tabs []types.TabRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Browser Tabs — %d %s\n", len(tabs), tabNoun(len(tabs)))
	fmt.Fprintf(&b, "> Exported %s\n", time.Now().Format("2006-01-02 15:04"))

	for _, w := range windowIDs(tabs) {
		wt := windowTabs(tabs, w)
		fmt.Fprintf(&b, "\n## Window %d (%d %s)\n\n", w, len(wt), tabNoun(len(wt)))

		for _, tab := range wt {
			if tab.GroupID == types.NoGroup {
				b.WriteString(tabLine(tab))
			}
		}
		for _, gid := range groupIDs(wt) {
			gt := groupTabs(wt, gid)
			fmt.Fprintf(&b, "\n### %s (%d %s)\n\n", groupHeading(gt[0]), len(gt), tabNoun(len(gt)))
			for _, tab := range gt {
				b.WriteString(tabLine(tab))
			}
		}
	}

	return b.String()
}

func tabLine(tab types.TabRecord) string {
	title := tab.Title
	if title == "" {
		title = tab.URL
	}
	line := fmt.Sprintf("- [%s](%s)", title, tab.URL)
	if tab.LastAccessed > 0 {
		line += " — " + relativeTime(tab.LastAccessed)
	}
	if tab.Pinned {
		line += " (pinned)"
	}
	if tab.State == types.StateDiscarded {
		line += " (discarded)"
	}
	return line + "\n"
}

func tabNoun(n int) string {
	if n == 1 {
		return "tab"
	}
	return "tabs"
}

func groupHeading(tab types.TabRecord) string {
	if tab.GroupTitle != "" {
		return tab.GroupTitle
	}
	return fmt.Sprintf("Group %d", tab.GroupID)
}

// windowIDs lists the distinct windows in first-seen order.
func windowIDs(tabs []types.TabRecord) []int {
	var ids []int
	seen := map[int]bool{}
	for _, tab := range tabs {
		if !seen[tab.WindowID] {
			seen[tab.WindowID] = true
			ids = append(ids, tab.WindowID)
		}
	}
	return ids
}

func windowTabs(tabs []types.TabRecord, windowID int) []types.TabRecord {
	var out []types.TabRecord
	for _, tab := range tabs {
		if tab.WindowID == windowID {
			out = append(out, tab)
		}
	}
	return out
}

// groupIDs lists the distinct groups in first-seen order, ungrouped
// excluded.
func groupIDs(tabs []types.TabRecord) []int {
	var ids []int
	seen := map[int]bool{}
	for _, tab := range tabs {
		if tab.GroupID != types.NoGroup && !seen[tab.GroupID] {
			seen[tab.GroupID] = true
			ids = append(ids, tab.GroupID)
		}
	}
	return ids
}

func groupTabs(tabs []types.TabRecord, groupID int) []types.TabRecord {
	var out []types.TabRecord
	for _, tab := range tabs {
		if tab.GroupID == groupID {
			out = append(out, tab)
		}
	}
	return out
}

func relativeTime(ms int64) string {
	d := time.Since(time.UnixMilli(ms))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
