package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// StackOverflowSource searches recent questions through the Stack Exchange API
type StackOverflowSource struct {
	baseURL  string
	lookback time.Duration
	client   *resty.Client
}

type stackOverflowResponse struct {
	Items          []stackOverflowQuestion `json:"items"`
	QuotaRemaining int                     `json:"quota_remaining"`
}

type stackOverflowQuestion struct {
	QuestionID int      `json:"question_id"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Tags       []string `json:"tags"`
	Owner      struct {
		DisplayName string `json:"display_name"`
		UserID      int    `json:"user_id"`
	} `json:"owner"`
	CreationDate int64  `json:"creation_date"`
	Score        int    `json:"score"`
	ViewCount    int    `json:"view_count"`
	AnswerCount  int    `json:"answer_count"`
	Link         string `json:"link"`
	IsAnswered   bool   `json:"is_answered"`
}

// NewStackOverflowSource creates a new Stack Overflow source
func NewStackOverflowSource() *StackOverflowSource {
	return &StackOverflowSource{
		baseURL:  "https://api.stackexchange.com/2.3",
		lookback: 7 * 24 * time.Hour,
		client:   newClient(),
	}
}

func (s *StackOverflowSource) Name() string {
	return models.PlatformStackOverflow
}

func (s *StackOverflowSource) IsEnabled() bool {
	return true // Stack Overflow API doesn't require authentication for basic searches
}

func (s *StackOverflowSource) Search(ctx context.Context, keywords []string, _ models.Filters) ([]models.Mention, error) {
	return searchEach(ctx, s.Name(), keywords, func(keyword string) ([]models.Mention, error) {
		return s.searchKeyword(ctx, keyword)
	})
}

func (s *StackOverflowSource) searchKeyword(ctx context.Context, keyword string) ([]models.Mention, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"order":    "desc",
			"sort":     "creation",
			"q":        keyword,
			"site":     "stackoverflow",
			"fromdate": strconv.FormatInt(time.Now().Add(-s.lookback).Unix(), 10),
			"pagesize": "50",
			"filter":   "withbody",
		}).
		Get(s.baseURL + "/search/advanced")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(s.Name(), resp); err != nil {
		return nil, err
	}

	var searchResp stackOverflowResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Stack Overflow response: %w", err)
	}

	mentions := make([]models.Mention, 0, len(searchResp.Items))
	for _, question := range searchResp.Items {
		content := question.Title + "\n\n" + stripHTML(question.Body)

		m := newMention(s.Name(), strconv.Itoa(question.QuestionID), content, time.Unix(question.CreationDate, 0).UTC(), keyword)
		m.AuthorName = question.Owner.DisplayName
		if question.Owner.UserID != 0 {
			m.AuthorHandle = strconv.Itoa(question.Owner.UserID)
		}
		m.URL = question.Link
		m.Metadata = map[string]interface{}{
			"tags":         strings.Join(question.Tags, ","),
			"score":        question.Score,
			"view_count":   question.ViewCount,
			"answer_count": question.AnswerCount,
			"is_answered":  question.IsAnswered,
		}
		mentions = append(mentions, m)
	}

	return mentions, nil
}
