package sources

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/resilience"
)

// NewsAPISource searches articles through the NewsAPI everything endpoint
type NewsAPISource struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NewNewsAPISource creates a new NewsAPI source
func NewNewsAPISource(apiKey string) *NewsAPISource {
	return &NewsAPISource{
		apiKey:  apiKey,
		baseURL: "https://newsapi.org/v2",
		client:  newClient(),
	}
}

func (n *NewsAPISource) Name() string {
	return models.PlatformNewsAPI
}

func (n *NewsAPISource) IsEnabled() bool {
	return n.apiKey != ""
}

// Search queries each keyword, restricted to the first allowed language of
// the filters when one is set
func (n *NewsAPISource) Search(ctx context.Context, keywords []string, filters models.Filters) ([]models.Mention, error) {
	if !n.IsEnabled() {
		logrus.Debug("NewsAPI source disabled - missing API key")
		return []models.Mention{}, nil
	}

	language := ""
	if len(filters.Languages) > 0 {
		language = filters.Languages[0]
	}

	return searchEach(ctx, n.Name(), keywords, func(keyword string) ([]models.Mention, error) {
		return n.searchArticles(ctx, keyword, language)
	})
}

func (n *NewsAPISource) searchArticles(ctx context.Context, keyword, language string) ([]models.Mention, error) {
	req := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        keyword,
			"sortBy":   "publishedAt",
			"pageSize": "50",
			"apiKey":   n.apiKey,
		})
	if language != "" {
		req.SetQueryParam("language", language)
	}

	resp, err := req.Get(n.baseURL + "/everything")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(n.Name(), resp); err != nil {
		return nil, err
	}

	var searchResp newsAPIResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse NewsAPI response: %w", err)
	}
	if searchResp.Status != "ok" {
		return nil, resilience.Permanent(fmt.Errorf("newsapi error %s: %s", searchResp.Code, searchResp.Message))
	}

	mentions := make([]models.Mention, 0, len(searchResp.Articles))
	for _, article := range searchResp.Articles {
		if article.URL == "" {
			continue
		}

		m := newMention(n.Name(), "news_"+nonAlphanumeric.ReplaceAllString(article.URL, "_"),
			article.Title+" "+article.Description, parseTime(article.PublishedAt), keyword)
		m.AuthorName = article.Author
		if m.AuthorName == "" {
			m.AuthorName = article.Source.Name
		}
		m.URL = article.URL
		m.Metadata = map[string]interface{}{
			"source": article.Source.Name,
		}
		mentions = append(mentions, m)
	}

	return mentions, nil
}
