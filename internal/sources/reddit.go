package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/resilience"
)

// RedditSource searches Reddit through the OAuth API using application-only
// (client credentials) authentication
type RedditSource struct {
	clientID     string
	clientSecret string
	userAgent    string
	client       *resty.Client

	authURL string
	apiURL  string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	Ups         int     `json:"ups"`
	NumComments int     `json:"num_comments"`
}

// NewRedditSource creates a new Reddit source
func NewRedditSource(clientID, clientSecret, userAgent string) *RedditSource {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &RedditSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		client:       newClient(),
		authURL:      "https://www.reddit.com/api/v1/access_token",
		apiURL:       "https://oauth.reddit.com",
	}
}

func (r *RedditSource) Name() string {
	return models.PlatformReddit
}

func (r *RedditSource) IsEnabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

// Search runs one query joining the keywords with OR, restricted to the
// subreddits of the filters when any are given
func (r *RedditSource) Search(ctx context.Context, keywords []string, filters models.Filters) ([]models.Mention, error) {
	if !r.IsEnabled() {
		logrus.Debug("Reddit source disabled - missing credentials")
		return []models.Mention{}, nil
	}
	if len(keywords) == 0 {
		return []models.Mention{}, nil
	}

	token, err := r.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	subreddit := "all"
	restrict := "false"
	if len(filters.Subreddits) > 0 {
		subreddit = strings.Join(filters.Subreddits, "+")
		restrict = "true"
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", r.userAgent).
		SetQueryParams(map[string]string{
			"q":           strings.Join(keywords, " OR "),
			"sort":        "new",
			"limit":       "25",
			"t":           "week",
			"restrict_sr": restrict,
			"type":        "link,self",
		}).
		Get(fmt.Sprintf("%s/r/%s/search.json", r.apiURL, subreddit))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		// token revoked or expired early; the next attempt authenticates again
		r.resetToken()
		return nil, &StatusError{Source: r.Name(), StatusCode: resp.StatusCode()}
	}
	if err := checkResponse(r.Name(), resp); err != nil {
		return nil, err
	}

	var searchResp redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Reddit response: %w", err)
	}

	mentions := make([]models.Mention, 0, len(searchResp.Data.Children))
	for _, child := range searchResp.Data.Children {
		mentions = append(mentions, r.toMention(child.Data, keywords))
	}

	return deduplicateMentions(mentions), nil
}

// IsRetryable treats a rejected bearer token as transient since the next
// attempt fetches a fresh one
func (r *RedditSource) IsRetryable(err error) bool {
	if !resilience.IsRetryable(err) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	return IsRetryable(err)
}

func (r *RedditSource) toMention(post redditPost, keywords []string) models.Mention {
	content := post.Title
	if post.Selftext != "" {
		content += "\n\n" + post.Selftext
	}

	m := newMention(r.Name(), post.ID, content, time.Unix(int64(post.Created), 0).UTC(), "")
	m.AuthorName = post.Author
	m.AuthorHandle = post.Author
	m.URL = "https://www.reddit.com" + post.Permalink
	m.KeywordsMatched = matchedTerms(content, keywords)
	m.Metadata = map[string]interface{}{
		"subreddit":      post.Subreddit,
		"score":          post.Score,
		"upvotes":        post.Ups,
		"comments_count": post.NumComments,
	}
	return m
}

func (r *RedditSource) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.expiresAt) {
		return r.accessToken, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", r.userAgent).
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.authURL)
	if err != nil {
		return "", err
	}
	if err := checkResponse(r.Name(), resp); err != nil {
		return "", err
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", err
	}
	if authResp.AccessToken == "" {
		return "", resilience.Permanent(fmt.Errorf("reddit returned an empty access token"))
	}

	r.accessToken = authResp.AccessToken
	// refresh a minute early
	r.expiresAt = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - time.Minute)
	return r.accessToken, nil
}

func (r *RedditSource) resetToken() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessToken = ""
	r.expiresAt = time.Time{}
}
