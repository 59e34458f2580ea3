package analysis

import (
	"fmt"
	"time"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// Alert types and severities
const (
	AlertSentimentDrop = "sentiment_drop"
	AlertKeywordMatch  = "keyword_match"

	SeverityHigh     = "high"
	SeverityCritical = "critical"

	// SentimentAlertThreshold is the score at or below which a mention alerts
	SentimentAlertThreshold = -3
)

// AlertsFor builds an alert for every mention that is urgent enough
// (urgency >= urgencyThreshold) or negative enough (sentiment <= -3).
func AlertsFor(caseID string, mentions []models.Mention, urgencyThreshold int) []models.Alert {
	var alerts []models.Alert
	now := time.Now()

	for i := range mentions {
		m := mentions[i]
		negative := m.SentimentScore <= SentimentAlertThreshold
		if m.UrgencyScore < urgencyThreshold && !negative {
			continue
		}

		alertType := AlertKeywordMatch
		if negative {
			alertType = AlertSentimentDrop
		}

		severity := SeverityHigh
		if m.UrgencyScore >= 9 {
			severity = SeverityCritical
		}

		description := fmt.Sprintf("Urgency score: %d/10. Content: %q", m.UrgencyScore, preview(m.Content, 100))
		alerts = append(alerts, models.Alert{
			CaseID:      caseID,
			MentionID:   m.ID,
			Type:        alertType,
			Severity:    severity,
			Title:       fmt.Sprintf("Critical mention detected on %s", m.Platform),
			Description: description,
			Status:      "new",
			Mention:     &m,
			CreatedAt:   now,
		})
	}

	return alerts
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
