package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// HackerNewsSource searches stories and comments through the Algolia
// Hacker News search API
type HackerNewsSource struct {
	baseURL     string
	hitsPerPage int
	client      *resty.Client
}

type hackerNewsResponse struct {
	Hits []hackerNewsHit `json:"hits"`
}

type hackerNewsHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
	StoryID     int    `json:"story_id"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
}

// NewHackerNewsSource creates a new Hacker News source
func NewHackerNewsSource() *HackerNewsSource {
	return &HackerNewsSource{
		baseURL:     "https://hn.algolia.com/api/v1",
		hitsPerPage: 50,
		client:      newClient(),
	}
}

func (h *HackerNewsSource) Name() string {
	return models.PlatformHackerNews
}

func (h *HackerNewsSource) IsEnabled() bool {
	return true // the Algolia API doesn't require authentication
}

func (h *HackerNewsSource) Search(ctx context.Context, keywords []string, _ models.Filters) ([]models.Mention, error) {
	return searchEach(ctx, h.Name(), keywords, func(keyword string) ([]models.Mention, error) {
		stories, err := h.search(ctx, keyword, "story")
		if err != nil {
			return nil, err
		}
		comments, err := h.search(ctx, keyword, "comment")
		if err != nil {
			return nil, err
		}
		return append(stories, comments...), nil
	})
}

func (h *HackerNewsSource) search(ctx context.Context, keyword, tag string) ([]models.Mention, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":       keyword,
			"tags":        tag,
			"hitsPerPage": strconv.Itoa(h.hitsPerPage),
		}).
		Get(h.baseURL + "/search")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(h.Name(), resp); err != nil {
		return nil, err
	}

	var searchResp hackerNewsResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Hacker News response: %w", err)
	}

	mentions := make([]models.Mention, 0, len(searchResp.Hits))
	for _, hit := range searchResp.Hits {
		itemURL := "https://news.ycombinator.com/item?id=" + hit.ObjectID
		publishedAt := time.Unix(hit.CreatedAtI, 0).UTC()

		var m models.Mention
		if tag == "story" {
			content := hit.Title
			if hit.StoryText != "" {
				content += " " + stripHTML(hit.StoryText)
			}
			m = newMention(h.Name(), hit.ObjectID, content, publishedAt, keyword)
			m.URL = itemURL
			// use the linked article when there is one
			if hit.URL != "" {
				m.URL = hit.URL
			}
			m.Metadata = map[string]interface{}{
				"type":     "story",
				"points":   hit.Points,
				"comments": hit.NumComments,
			}
		} else {
			m = newMention(h.Name(), hit.ObjectID, stripHTML(hit.CommentText), publishedAt, keyword)
			m.URL = itemURL
			m.Metadata = map[string]interface{}{
				"type":     "comment",
				"story_id": hit.StoryID,
			}
		}
		m.AuthorName = hit.Author
		m.AuthorHandle = hit.Author
		mentions = append(mentions, m)
	}

	return mentions, nil
}
