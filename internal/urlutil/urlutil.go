package urlutil

import (
	"net/url"
	"sort"
	"strings"
)

// nonContentPrefixes match browser-internal pages. These never receive
// thumbnails, frecency credit or workspace slots.
var nonContentPrefixes = []string{
	"about:",
	"chrome:",
	"chrome-extension:",
	"moz-extension:",
	"edge:",
	"view-source:",
	"file:",
	"resource:",
	"data:",
	"javascript:",
}

// IsContent reports whether rawURL points at an ordinary web page rather
// than a browser-internal surface.
func IsContent(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	for _, prefix := range nonContentPrefixes {
		if strings.HasPrefix(rawURL, prefix) {
			return false
		}
	}
	return true
}

// Normalize canonicalizes a URL for identity comparison: the fragment is
// dropped, query parameters are sorted, and a trailing slash is trimmed
// unless the path is the bare root.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	params := u.Query()
	for k := range params {
		sort.Strings(params[k])
	}
	u.RawQuery = params.Encode()
	result := u.String()
	if strings.HasSuffix(result, "/") && result != u.Scheme+"://"+u.Host+"/" {
		result = strings.TrimRight(result, "/")
	}
	return result
}
