package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// MastodonSource searches public statuses on one Mastodon instance
type MastodonSource struct {
	instanceURL string
	limit       int
	client      *resty.Client
}

type mastodonSearchResponse struct {
	Statuses []mastodonStatus `json:"statuses"`
}

type mastodonStatus struct {
	ID        string `json:"id"`
	URI       string `json:"uri"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	CreatedAt string `json:"created_at"`
	Account   struct {
		Username    string `json:"username"`
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
	} `json:"account"`
	FavouritesCount int `json:"favourites_count"`
	RepliesCount    int `json:"replies_count"`
	ReblogsCount    int `json:"reblogs_count"`
}

// NewMastodonSource creates a source for the given instance
func NewMastodonSource(instanceURL string) *MastodonSource {
	return &MastodonSource{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		limit:       40,
		client:      newClient(),
	}
}

func (m *MastodonSource) Name() string {
	return models.PlatformMastodon
}

func (m *MastodonSource) IsEnabled() bool {
	return m.instanceURL != ""
}

func (m *MastodonSource) Search(ctx context.Context, keywords []string, _ models.Filters) ([]models.Mention, error) {
	if !m.IsEnabled() {
		return []models.Mention{}, nil
	}

	return searchEach(ctx, m.Name(), keywords, func(keyword string) ([]models.Mention, error) {
		return m.searchStatuses(ctx, keyword)
	})
}

func (m *MastodonSource) searchStatuses(ctx context.Context, keyword string) ([]models.Mention, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     keyword,
			"type":  "statuses",
			"limit": strconv.Itoa(m.limit),
		}).
		Get(m.instanceURL + "/api/v2/search")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(m.Name(), resp); err != nil {
		return nil, err
	}

	var searchResp mastodonSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Mastodon response: %w", err)
	}

	mentions := make([]models.Mention, 0, len(searchResp.Statuses))
	for _, status := range searchResp.Statuses {
		mention := newMention(m.Name(), status.ID, stripHTML(status.Content), parseTime(status.CreatedAt), keyword)
		mention.AuthorName = status.Account.Username
		mention.AuthorHandle = status.Account.Acct
		mention.URL = status.URL
		if mention.URL == "" {
			mention.URL = status.URI
		}
		mention.Metadata = map[string]interface{}{
			"favourites": status.FavouritesCount,
			"replies":    status.RepliesCount,
			"reblogs":    status.ReblogsCount,
			"language":   status.Language,
		}
		mentions = append(mentions, mention)
	}

	return mentions, nil
}
