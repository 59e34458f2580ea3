package models

import "time"

// Platform identifiers understood by the source registry
const (
	PlatformFacebook      = "facebook"
	PlatformReddit        = "reddit"
	PlatformYouTube       = "youtube"
	PlatformHackerNews    = "hackernews"
	PlatformNewsAPI       = "newsapi"
	PlatformMastodon      = "mastodon"
	PlatformTelegram      = "telegram"
	PlatformDiscord       = "discord"
	PlatformStackOverflow = "stackoverflow"
)

// Mention represents a candidate mention found on an external platform
type Mention struct {
	ID              string                 `json:"id"`
	CaseID          string                 `json:"case_id"`
	Platform        string                 `json:"platform"`    // "reddit", "youtube", "hackernews", etc.
	ExternalID      string                 `json:"external_id"` // unique within a platform only
	Content         string                 `json:"content"`
	AuthorName      string                 `json:"author_name,omitempty"`
	AuthorHandle    string                 `json:"author_handle,omitempty"`
	URL             string                 `json:"url,omitempty"`
	PublishedAt     time.Time              `json:"published_at"`
	DiscoveredAt    time.Time              `json:"discovered_at"`
	Sentiment       string                 `json:"sentiment,omitempty"` // "positive", "negative", "neutral"
	SentimentScore  int                    `json:"sentiment_score"`     // -5 to +5
	UrgencyScore    int                    `json:"urgency_score"`       // 1 to 10
	KeywordsMatched []string               `json:"keywords_matched"`
	Status          string                 `json:"status"` // "new", "processed", "responded", "ignored"
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Key returns the platform-scoped identity of the mention
func (m Mention) Key() MentionKey {
	return MentionKey{Platform: m.Platform, ExternalID: m.ExternalID}
}

// MentionKey identifies a mention within a case. Combined with the case ID it
// forms the deduplication key (case_id, platform, external_id).
type MentionKey struct {
	Platform   string `json:"platform"`
	ExternalID string `json:"external_id"`
}

// Filters narrows what a monitoring job keeps
type Filters struct {
	Languages                   []string `json:"languages,omitempty"`
	ExcludeLanguages            []string `json:"excludeLanguages,omitempty"`
	LanguageConfidenceThreshold *float64 `json:"languageConfidenceThreshold,omitempty"`
	Subreddits                  []string `json:"subreddits,omitempty"`
}

// HasLanguageRules reports whether language filtering applies
func (f Filters) HasLanguageRules() bool {
	return len(f.Languages) > 0 || len(f.ExcludeLanguages) > 0
}

// MonitoringJob is the recurring scan owned by one active case
type MonitoringJob struct {
	CaseID    string        `json:"caseId"`
	Keywords  []string      `json:"keywords"`
	Platforms []string      `json:"platforms"`
	Interval  time.Duration `json:"interval"`
	Filters   Filters       `json:"filters"`
	LastRun   time.Time     `json:"lastRun"`
	IsRunning bool          `json:"isRunning"`
}

// Alert represents an urgent notification raised for an ingested mention
type Alert struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	MentionID   string    `json:"mention_id,omitempty"`
	Type        string    `json:"type"`     // "sentiment_drop", "keyword_match"
	Severity    string    `json:"severity"` // "high", "critical"
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Mention     *Mention  `json:"mention,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScanResult summarises a manually triggered scan
type ScanResult struct {
	Success       bool   `json:"success"`
	MentionsFound int    `json:"mentionsFound"`
	Error         string `json:"error,omitempty"`
}
