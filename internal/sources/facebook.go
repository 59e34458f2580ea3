package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// FacebookSource searches public posts through the Graph API with an app
// access token
type FacebookSource struct {
	appID     string
	appSecret string
	baseURL   string
	client    *resty.Client
}

type facebookSearchResponse struct {
	Data []facebookPost `json:"data"`
}

type facebookPost struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	Story       string `json:"story"`
	CreatedTime string `json:"created_time"`
	From        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	PermalinkURL string `json:"permalink_url"`
	Likes        struct {
		Summary struct {
			TotalCount int `json:"total_count"`
		} `json:"summary"`
	} `json:"likes"`
	Comments struct {
		Summary struct {
			TotalCount int `json:"total_count"`
		} `json:"summary"`
	} `json:"comments"`
	Shares struct {
		Count int `json:"count"`
	} `json:"shares"`
}

// NewFacebookSource creates a new Facebook source
func NewFacebookSource(appID, appSecret string) *FacebookSource {
	return &FacebookSource{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   "https://graph.facebook.com/v18.0",
		client:    newClient(),
	}
}

func (f *FacebookSource) Name() string {
	return models.PlatformFacebook
}

func (f *FacebookSource) IsEnabled() bool {
	return f.appID != "" && f.appSecret != ""
}

func (f *FacebookSource) Search(ctx context.Context, keywords []string, _ models.Filters) ([]models.Mention, error) {
	if !f.IsEnabled() {
		logrus.Debug("Facebook source disabled - missing app credentials")
		return []models.Mention{}, nil
	}
	if len(keywords) == 0 {
		return []models.Mention{}, nil
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":            strings.Join(keywords, " OR "),
			"type":         "post",
			"limit":        "25",
			"access_token": f.appID + "|" + f.appSecret,
			"fields":       "id,message,story,created_time,from{name,id},likes.summary(true),comments.summary(true),shares,permalink_url",
		}).
		Get(f.baseURL + "/search")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(f.Name(), resp); err != nil {
		return nil, err
	}

	var searchResp facebookSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Facebook response: %w", err)
	}

	mentions := make([]models.Mention, 0, len(searchResp.Data))
	for _, post := range searchResp.Data {
		content := post.Message
		if content == "" {
			content = post.Story
		}

		publishedAt, err := time.Parse("2006-01-02T15:04:05-0700", post.CreatedTime)
		if err != nil {
			publishedAt = parseTime(post.CreatedTime)
		}

		m := newMention(f.Name(), post.ID, content, publishedAt.UTC(), "")
		m.AuthorName = post.From.Name
		m.AuthorHandle = post.From.ID
		m.URL = post.PermalinkURL
		if m.URL == "" {
			m.URL = "https://www.facebook.com/" + post.ID
		}
		m.KeywordsMatched = matchedTerms(content, keywords)
		m.Metadata = map[string]interface{}{
			"likes":    post.Likes.Summary.TotalCount,
			"comments": post.Comments.Summary.TotalCount,
			"shares":   post.Shares.Count,
		}
		mentions = append(mentions, m)
	}

	return deduplicateMentions(mentions), nil
}
