// Package analysis scores mentions for sentiment and urgency and derives the
// alerts raised for ingested mentions.
package analysis

import (
	"math"
	"regexp"
	"strings"

	"github.com/socialguard/mentions-monitor/internal/language"
)

// Sentiment labels
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Score bounds
const (
	MinSentiment = -5.0
	MaxSentiment = 5.0
)

// SentimentResult is the lexicon score of a text
type SentimentResult struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Matched    int     `json:"matched"`
}

// French and English weights
var lexicon = map[string]float64{
	"excellent": 2, "parfait": 2, "fantastique": 2, "génial": 2, "super": 1.5,
	"bien": 1, "bon": 1, "content": 1.5, "satisfait": 1.5, "heureux": 2,
	"recommande": 1.5, "top": 1, "merci": 1, "bravo": 1.5, "impressionnant": 2,
	"perfect": 2, "fantastic": 2, "awesome": 2, "great": 1.5, "good": 1,
	"nice": 1, "happy": 1.5, "satisfied": 1.5, "love": 2, "recommend": 1.5,
	"amazing": 2, "wonderful": 2, "outstanding": 2, "helpful": 1, "solved": 1,

	"terrible": -2, "horrible": -2, "nul": -1.5, "mauvais": -1, "déçu": -1.5,
	"problème": -1, "erreur": -1, "bug": -1, "lent": -1, "cher": -0.5,
	"arnaque": -2, "scandale": -2, "boycott": -2, "fraude": -2, "pire": -2,
	"awful": -2, "bad": -1, "disappointed": -1.5, "problem": -1, "error": -1,
	"slow": -1, "expensive": -0.5, "scam": -2, "fraud": -2, "worst": -2,
	"hate": -2, "broken": -1.5,
}

var (
	negationPattern    = regexp.MustCompile(`\b(pas|ne|not|don't|didn't|isn't|aren't|never|jamais)\b`)
	intensifierPattern = regexp.MustCompile(`très|extremely|vraiment|really`)
)

// ScoreSentiment scores text on the lexicon. The average weight of the
// matched words is doubled and clamped to [-5, 5], then adjusted for
// negation, intensifiers, questions and exclamations.
func ScoreSentiment(text string) SentimentResult {
	var total float64
	matched := 0
	for _, token := range language.Tokenize(text) {
		if w, ok := lexicon[token]; ok {
			total += w
			matched++
		}
	}

	var score float64
	if matched > 0 {
		score = clamp(total/float64(matched)*2, MinSentiment, MaxSentiment)
	}
	score = clamp(adjust(strings.ToLower(text), score), MinSentiment, MaxSentiment)
	score = math.Round(score*10) / 10

	confidence := 0.1
	if matched > 0 {
		confidence = math.Min(0.8, float64(matched)*0.1)
	}

	return SentimentResult{
		Score:      score,
		Label:      Label(score),
		Confidence: confidence,
		Matched:    matched,
	}
}

// Label maps a score onto positive, negative or neutral
func Label(score float64) string {
	switch {
	case score >= 1:
		return LabelPositive
	case score <= -1:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func adjust(lower string, score float64) float64 {
	if score == 0 {
		return 0
	}
	if negationPattern.MatchString(lower) {
		score *= -0.8
	}
	if intensifierPattern.MatchString(lower) {
		score *= 1.3
	}
	if strings.Contains(lower, "?") {
		score *= 0.7
	}
	if n := strings.Count(lower, "!"); n > 0 {
		score *= 1 + float64(n)*0.1
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
