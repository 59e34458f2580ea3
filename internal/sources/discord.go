package sources

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// DiscordSource reads the latest messages of configured channels with a bot
// token. The bot must be a member of each channel with the message content
// intent enabled.
type DiscordSource struct {
	token      string
	channelIDs []string
	baseURL    string
	client     *resty.Client
}

type discordMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
	} `json:"author"`
}

// NewDiscordSource creates a new Discord source
func NewDiscordSource(token string, channelIDs []string) *DiscordSource {
	return &DiscordSource{
		token:      token,
		channelIDs: channelIDs,
		baseURL:    "https://discord.com/api/v10",
		client:     newClient(),
	}
}

func (d *DiscordSource) Name() string {
	return models.PlatformDiscord
}

func (d *DiscordSource) IsEnabled() bool {
	return d.token != "" && len(d.channelIDs) > 0
}

func (d *DiscordSource) Search(ctx context.Context, keywords []string, _ models.Filters) ([]models.Mention, error) {
	if !d.IsEnabled() {
		logrus.Debug("Discord source disabled - missing bot token or channels")
		return []models.Mention{}, nil
	}

	// searchEach iterates channels here; a channel that fails is skipped
	return searchEach(ctx, d.Name(), d.channelIDs, func(channelID string) ([]models.Mention, error) {
		return d.channelMentions(ctx, channelID, keywords)
	})
}

func (d *DiscordSource) channelMentions(ctx context.Context, channelID string, keywords []string) ([]models.Mention, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bot "+d.token).
		SetQueryParam("limit", "100").
		Get(fmt.Sprintf("%s/channels/%s/messages", d.baseURL, channelID))
	if err != nil {
		return nil, err
	}
	if err := checkResponse(d.Name(), resp); err != nil {
		return nil, err
	}

	var messages []discordMessage
	if err := json.Unmarshal(resp.Body(), &messages); err != nil {
		return nil, fmt.Errorf("failed to parse Discord response: %w", err)
	}

	mentions := make([]models.Mention, 0)
	for _, msg := range messages {
		matched := matchedTerms(msg.Content, keywords)
		if len(matched) == 0 {
			continue
		}

		m := newMention(d.Name(), msg.ID, msg.Content, parseTime(msg.Timestamp), "")
		m.KeywordsMatched = matched
		m.AuthorName = msg.Author.GlobalName
		if m.AuthorName == "" {
			m.AuthorName = msg.Author.Username
		}
		m.AuthorHandle = msg.Author.Username
		if msg.GuildID != "" {
			m.URL = fmt.Sprintf("https://discord.com/channels/%s/%s/%s", msg.GuildID, channelID, msg.ID)
		}
		m.Metadata = map[string]interface{}{
			"channel_id": channelID,
			"author_id":  msg.Author.ID,
		}
		mentions = append(mentions, m)
	}

	return mentions, nil
}
