package analysis

import (
	"math"
	"strings"
	"time"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// Urgency bounds
const (
	MinUrgency  = 1
	MaxUrgency  = 10
	baseUrgency = 5
)

var (
	// Reputation crisis vocabulary
	crisisKeywords = []string{
		"scam", "boycott", "terrible", "worst", "fraud", "problem",
		"arnaque", "scandale", "fraude", "pire", "lawsuit", "procès",
	}

	// Security-related urgent keywords
	securityKeywords = []string{
		"security vulnerability", "cve", "exploit", "breach", "attack",
		"malware", "ransomware", "phishing", "zero day", "data leak",
		"fuite de données", "piratage",
	}

	// Service issues
	outageKeywords = []string{
		"outage", "downtime", "incident", "degraded performance", "is down",
		"panne", "hors service", "ne fonctionne plus",
	}
)

// ScoreUrgency rates a mention from 1 to 10. It starts at 5 and is raised by
// crisis, security and outage vocabulary, by negative sentiment, by the
// number of matched keywords and by the upstream engagement score when the
// source reports one.
func ScoreUrgency(m models.Mention, sentiment float64) int {
	content := strings.ToLower(m.Content)
	urgency := baseUrgency

	if containsAny(content, crisisKeywords) {
		urgency += 2
	}
	if containsAny(content, securityKeywords) || containsAny(content, outageKeywords) {
		urgency += 2
	}

	switch {
	case sentiment <= -3:
		urgency += 2
	case sentiment < 0:
		urgency++
	}

	if score, ok := engagementScore(m.Metadata); ok {
		switch {
		case score > 100:
			urgency += 2
		case score > 50:
			urgency++
		case score < 0:
			urgency += 2
		}
	}

	if n := len(m.KeywordsMatched); n > 1 {
		urgency++
	}

	if urgency < MinUrgency {
		return MinUrgency
	}
	if urgency > MaxUrgency {
		return MaxUrgency
	}
	return urgency
}

// Analyze fills the sentiment and urgency fields of every mention in place
func Analyze(mentions []models.Mention) {
	now := time.Now()
	for i := range mentions {
		m := &mentions[i]
		s := ScoreSentiment(m.Content)
		m.Sentiment = s.Label
		m.SentimentScore = int(math.Round(s.Score))
		m.UrgencyScore = ScoreUrgency(*m, s.Score)
		if m.DiscoveredAt.IsZero() {
			m.DiscoveredAt = now
		}
	}
}

func engagementScore(metadata map[string]interface{}) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata["score"].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func containsAny(content string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(content, k) {
			return true
		}
	}
	return false
}
