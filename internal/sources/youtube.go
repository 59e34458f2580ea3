package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
)

const youTubeCommentedVideos = 5

// YouTubeSource searches videos through the YouTube Data API and reads the
// top comments of the most relevant ones
type YouTubeSource struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

type youTubeSearchResponse struct {
	Items []youTubeVideo `json:"items"`
}

type youTubeVideo struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		ChannelID    string `json:"channelId"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
}

type youTubeCommentsResponse struct {
	Items []youTubeComment `json:"items"`
}

type youTubeComment struct {
	ID      string `json:"id"`
	Snippet struct {
		TopLevelComment struct {
			Snippet struct {
				TextDisplay       string `json:"textDisplay"`
				AuthorDisplayName string `json:"authorDisplayName"`
				PublishedAt       string `json:"publishedAt"`
				LikeCount         int    `json:"likeCount"`
			} `json:"snippet"`
		} `json:"topLevelComment"`
		TotalReplyCount int `json:"totalReplyCount"`
	} `json:"snippet"`
}

// NewYouTubeSource creates a new YouTube source
func NewYouTubeSource(apiKey string) *YouTubeSource {
	return &YouTubeSource{
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/youtube/v3",
		client:  newClient(),
	}
}

func (y *YouTubeSource) Name() string {
	return models.PlatformYouTube
}

func (y *YouTubeSource) IsEnabled() bool {
	return y.apiKey != ""
}

func (y *YouTubeSource) Search(ctx context.Context, keywords []string, _ models.Filters) ([]models.Mention, error) {
	if !y.IsEnabled() {
		logrus.Debug("YouTube source disabled - missing API key")
		return []models.Mention{}, nil
	}

	return searchEach(ctx, y.Name(), keywords, func(keyword string) ([]models.Mention, error) {
		videos, err := y.searchVideos(ctx, keyword, 25)
		if err != nil {
			return nil, err
		}

		mentions := make([]models.Mention, 0, len(videos))
		for i, video := range videos {
			mentions = append(mentions, y.videoMention(video, keyword))
			if i >= youTubeCommentedVideos {
				continue
			}

			comments, err := y.getVideoComments(ctx, video.ID.VideoID, keyword)
			if err != nil {
				logrus.Warnf("Failed to get comments for video %s: %v", video.ID.VideoID, err)
				continue
			}
			mentions = append(mentions, comments...)
		}
		return mentions, nil
	})
}

func (y *YouTubeSource) searchVideos(ctx context.Context, keyword string, maxResults int) ([]youTubeVideo, error) {
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":       "snippet",
			"q":          keyword,
			"type":       "video",
			"order":      "relevance",
			"maxResults": strconv.Itoa(maxResults),
			"key":        y.apiKey,
		}).
		Get(y.baseURL + "/search")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(y.Name(), resp); err != nil {
		return nil, err
	}

	var searchResp youTubeSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse YouTube response: %w", err)
	}

	videos := searchResp.Items[:0]
	for _, v := range searchResp.Items {
		if v.ID.VideoID != "" {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func (y *YouTubeSource) getVideoComments(ctx context.Context, videoID, keyword string) ([]models.Mention, error) {
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":       "snippet",
			"videoId":    videoID,
			"maxResults": "20",
			"order":      "relevance",
			"key":        y.apiKey,
		}).
		Get(y.baseURL + "/commentThreads")
	if err != nil {
		return nil, err
	}

	// comments disabled on this video
	if resp.StatusCode() == http.StatusForbidden {
		return nil, nil
	}
	if err := checkResponse(y.Name(), resp); err != nil {
		return nil, err
	}

	var commentsResp youTubeCommentsResponse
	if err := json.Unmarshal(resp.Body(), &commentsResp); err != nil {
		return nil, fmt.Errorf("failed to parse YouTube comments response: %w", err)
	}

	mentions := make([]models.Mention, 0, len(commentsResp.Items))
	for _, comment := range commentsResp.Items {
		snippet := comment.Snippet.TopLevelComment.Snippet

		m := newMention(y.Name(), "comment_"+comment.ID, stripHTML(snippet.TextDisplay), parseTime(snippet.PublishedAt), keyword)
		m.AuthorName = snippet.AuthorDisplayName
		m.URL = fmt.Sprintf("https://www.youtube.com/watch?v=%s&lc=%s", videoID, comment.ID)
		m.Metadata = map[string]interface{}{
			"video_id":    videoID,
			"like_count":  snippet.LikeCount,
			"reply_count": comment.Snippet.TotalReplyCount,
			"type":        "comment",
		}
		mentions = append(mentions, m)
	}

	return mentions, nil
}

func (y *YouTubeSource) videoMention(video youTubeVideo, keyword string) models.Mention {
	content := video.Snippet.Title
	if video.Snippet.Description != "" {
		content += "\n\n" + video.Snippet.Description
	}

	m := newMention(y.Name(), "video_"+video.ID.VideoID, content, parseTime(video.Snippet.PublishedAt), keyword)
	m.AuthorName = video.Snippet.ChannelTitle
	m.AuthorHandle = video.Snippet.ChannelID
	m.URL = "https://www.youtube.com/watch?v=" + video.ID.VideoID
	m.Metadata = map[string]interface{}{
		"video_id": video.ID.VideoID,
		"type":     "video",
	}
	return m
}
