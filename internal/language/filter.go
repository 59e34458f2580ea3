package language

import (
	"strings"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// Filter applies the allow and deny lists of filters to mentions. With an
// allow list, a mention needs a confident detection in the list. A confident
// detection in the deny list is always rejected. Without lists every mention
// passes.
func (d *Detector) Filter(mentions []models.Mention, filters models.Filters, defaultThreshold float64) []models.Mention {
	if !filters.HasLanguageRules() {
		return mentions
	}

	threshold := defaultThreshold
	if filters.LanguageConfidenceThreshold != nil {
		threshold = *filters.LanguageConfidenceThreshold
	}

	allowed := toSet(filters.Languages)
	excluded := toSet(filters.ExcludeLanguages)

	kept := make([]models.Mention, 0, len(mentions))
	for _, m := range mentions {
		if d.Accept(m.Content, allowed, excluded, threshold) {
			kept = append(kept, m)
		}
	}
	return kept
}

// Accept decides a single text against prepared allow and deny sets
func (d *Detector) Accept(text string, allowed, excluded map[string]bool, threshold float64) bool {
	res := d.Detect(text)
	confident := res.Confidence >= threshold

	if len(allowed) > 0 && (!confident || !allowed[res.Language]) {
		return false
	}
	if confident && excluded[res.Language] {
		return false
	}
	return true
}

func toSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return set
}
