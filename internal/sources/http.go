package sources

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/resilience"
)

const (
	defaultUserAgent = "mentions-monitor/1.0"
	maxContentLen    = 2000
)

func newClient() *resty.Client {
	return resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", defaultUserAgent)
}

// StatusError is a non-2xx answer from a platform API
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API returned status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Source, e.StatusCode, e.Body)
}

// Retryable reports whether the status is transient. Rate limiting and
// server errors are; bad credentials, forbidden and missing resources are not.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable classifies errors returned by the adapters in this package
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return resilience.IsRetryable(err)
}

// checkResponse turns a non-2xx response into a StatusError. Terminal
// statuses are marked permanent so the retry loop stops at once.
func checkResponse(source string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	err := &StatusError{Source: source, StatusCode: resp.StatusCode(), Body: body}
	if !err.Retryable() {
		return resilience.Permanent(err)
	}
	return err
}

// searchEach runs fn for every term. A failing term is logged and skipped;
// the error surfaces only when every term failed.
func searchEach(ctx context.Context, source string, terms []string, fn func(term string) ([]models.Mention, error)) ([]models.Mention, error) {
	var (
		all      []models.Mention
		firstErr error
		failures int
	)

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mentions, err := fn(term)
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			logrus.WithFields(logrus.Fields{"source": source, "keyword": term}).Warnf("Search failed: %v", err)
			continue
		}
		all = append(all, mentions...)
	}

	if failures > 0 && failures == len(terms) {
		return nil, firstErr
	}
	return deduplicateMentions(all), nil
}

func deduplicateMentions(mentions []models.Mention) []models.Mention {
	seen := make(map[models.MentionKey]bool)
	unique := make([]models.Mention, 0, len(mentions))

	for _, mention := range mentions {
		if !seen[mention.Key()] {
			seen[mention.Key()] = true
			unique = append(unique, mention)
		}
	}

	return unique
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
)

// stripHTML removes markup from platform content
func stripHTML(content string) string {
	content = htmlTagPattern.ReplaceAllString(keepBreaks(content), "")
	content = html.UnescapeString(content)

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " ")); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// keepBreaks rewrites the tags that carry layout before the generic strip
func keepBreaks(content string) string {
	return strings.NewReplacer(
		"<p>", "\n", "</p>", "\n",
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"<code>", "`", "</code>", "`",
	).Replace(content)
}

func truncate(s string) string {
	if len(s) <= maxContentLen {
		return s
	}
	// stay on a rune boundary
	cut := maxContentLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func newMention(platform, externalID, content string, publishedAt time.Time, term string) models.Mention {
	m := models.Mention{
		Platform:        platform,
		ExternalID:      externalID,
		Content:         truncate(strings.TrimSpace(content)),
		PublishedAt:     publishedAt,
		DiscoveredAt:    time.Now().UTC(),
		UrgencyScore:    5,
		KeywordsMatched: []string{},
		Status:          "new",
		Metadata:        map[string]interface{}{},
	}
	if term != "" {
		m.KeywordsMatched = append(m.KeywordsMatched, term)
	}
	return m
}

// matchedTerms returns the terms contained in content, case-insensitively
func matchedTerms(content string, terms []string) []string {
	lower := strings.ToLower(content)
	matched := []string{}
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			matched = append(matched, term)
		}
	}
	return matched
}

// parseTime reads an RFC 3339 timestamp, falling back to now
func parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
