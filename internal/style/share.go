package style

import (
	"net/url"
	"strings"

	"github.com/tk0miya/roadside-station-maps/internal/storage"
)

// ShareURL appends q to base. A base that is already a shared link is
// returned as is.
func ShareURL(base string, q storage.Queries) string {
	if u, err := url.Parse(base); err == nil && storage.IsShared(u.Query()) {
		return base
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + encodeShared(q)
}

// encodeShared writes c1..c4 first and mode last
func encodeShared(q storage.Queries) string {
	v := q.Values()
	parts := make([]string, 0, 5)
	for _, k := range []string{"c1", "c2", "c3", "c4", storage.ModeParam} {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v.Get(k)))
	}
	return strings.Join(parts, "&")
}
