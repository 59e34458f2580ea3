package search

import (
	"strings"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// Matches reports whether content satisfies the groups. Matching is a
// case-insensitive substring test; empty groups always match.
func Matches(content string, g Groups) bool {
	lower := strings.ToLower(content)

	for _, k := range g.And {
		if !strings.Contains(lower, strings.ToLower(k)) {
			return false
		}
	}

	if len(g.Or) > 0 {
		found := false
		for _, k := range g.Or {
			if strings.Contains(lower, strings.ToLower(k)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, k := range g.Not {
		if strings.Contains(lower, strings.ToLower(k)) {
			return false
		}
	}

	return true
}

// Filter keeps the mentions whose content matches and records the positive
// keywords each one contains.
func Filter(mentions []models.Mention, g Groups) []models.Mention {
	if g.IsEmpty() {
		return mentions
	}

	kept := make([]models.Mention, 0, len(mentions))
	for _, m := range mentions {
		if !Matches(m.Content, g) {
			continue
		}
		m.KeywordsMatched = matched(m.Content, g, m.KeywordsMatched)
		kept = append(kept, m)
	}
	return kept
}

func matched(content string, g Groups, existing []string) []string {
	lower := strings.ToLower(content)
	seen := make(map[string]bool, len(existing))
	for _, k := range existing {
		seen[k] = true
	}

	out := existing
	for _, k := range append(append([]string{}, g.And...), g.Or...) {
		if seen[k] || !strings.Contains(lower, strings.ToLower(k)) {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
