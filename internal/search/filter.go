package search

import (
	"fmt"
	"strings"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// FilterParams narrows a station search
type FilterParams struct {
	Query   string
	PrefIDs []string
	Limit   int64
	Offset  int64
}

// PageSize clamps Limit to 1..100, defaulting to 20
func (p FilterParams) PageSize() int64 {
	switch {
	case p.Limit <= 0:
		return defaultLimit
	case p.Limit > maxLimit:
		return maxLimit
	default:
		return p.Limit
	}
}

// Filter renders the Meilisearch filter expression
func (p FilterParams) Filter() string {
	var prefs []string
	for _, id := range p.PrefIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		prefs = append(prefs, fmt.Sprintf("prefId = %s", quote(id)))
	}
	if len(prefs) == 0 {
		return ""
	}
	if len(prefs) == 1 {
		return prefs[0]
	}
	return "(" + strings.Join(prefs, " OR ") + ")"
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
