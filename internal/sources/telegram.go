package sources

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
)

const telegramBufferSize = 1000

// TelegramSource reads the channel posts and messages delivered to a bot.
// The Bot API has no search, so updates are polled with getUpdates and kept
// in a bounded buffer that every case searches.
type TelegramSource struct {
	token   string
	baseURL string
	client  *resty.Client

	mu           sync.Mutex
	lastUpdateID int64
	recent       []telegramMessage
}

type telegramUpdatesResponse struct {
	OK          bool             `json:"ok"`
	Description string           `json:"description"`
	Result      []telegramUpdate `json:"result"`
}

type telegramUpdate struct {
	UpdateID    int64            `json:"update_id"`
	Message     *telegramMessage `json:"message"`
	ChannelPost *telegramMessage `json:"channel_post"`
}

type telegramMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Chat      struct {
		ID       int64  `json:"id"`
		Type     string `json:"type"`
		Title    string `json:"title"`
		Username string `json:"username"`
	} `json:"chat"`
}

// NewTelegramSource creates a new Telegram source
func NewTelegramSource(token string) *TelegramSource {
	return &TelegramSource{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  newClient(),
	}
}

func (t *TelegramSource) Name() string {
	return models.PlatformTelegram
}

func (t *TelegramSource) IsEnabled() bool {
	return t.token != ""
}

func (t *TelegramSource) Search(ctx context.Context, keywords []string, _ models.Filters) ([]models.Mention, error) {
	if !t.IsEnabled() {
		logrus.Debug("Telegram source disabled - missing bot token")
		return []models.Mention{}, nil
	}

	messages, err := t.poll(ctx)
	if err != nil {
		return nil, err
	}

	mentions := make([]models.Mention, 0)
	for _, msg := range messages {
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		matched := matchedTerms(text, keywords)
		if len(matched) == 0 {
			continue
		}

		m := newMention(t.Name(), fmt.Sprintf("%d_%d", msg.Chat.ID, msg.MessageID), text, time.Unix(msg.Date, 0).UTC(), "")
		m.KeywordsMatched = matched
		m.AuthorName = msg.Chat.Username
		if m.AuthorName == "" {
			m.AuthorName = msg.Chat.Title
		}
		if m.AuthorName == "" {
			m.AuthorName = strconv.FormatInt(msg.Chat.ID, 10)
		}
		if msg.Chat.Username != "" {
			m.URL = fmt.Sprintf("https://t.me/%s/%d", msg.Chat.Username, msg.MessageID)
		}
		m.Metadata = map[string]interface{}{
			"chat_id":    msg.Chat.ID,
			"message_id": msg.MessageID,
			"chat_type":  msg.Chat.Type,
		}
		mentions = append(mentions, m)
	}

	return mentions, nil
}

// poll fetches pending updates, appends them to the buffer and returns a
// copy of the buffer
func (t *TelegramSource) poll(ctx context.Context) ([]telegramMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"timeout":         "0",
			"allowed_updates": `["channel_post","message"]`,
		})
	if t.lastUpdateID > 0 {
		req.SetQueryParam("offset", strconv.FormatInt(t.lastUpdateID+1, 10))
	}

	resp, err := req.Get(fmt.Sprintf("%s/bot%s/getUpdates", t.baseURL, t.token))
	if err != nil {
		return nil, err
	}
	if err := checkResponse(t.Name(), resp); err != nil {
		return nil, err
	}

	var updates telegramUpdatesResponse
	if err := json.Unmarshal(resp.Body(), &updates); err != nil {
		return nil, fmt.Errorf("failed to parse Telegram response: %w", err)
	}
	if !updates.OK {
		return nil, fmt.Errorf("telegram getUpdates failed: %s", updates.Description)
	}

	for _, upd := range updates.Result {
		if upd.UpdateID > t.lastUpdateID {
			t.lastUpdateID = upd.UpdateID
		}
		msg := upd.ChannelPost
		if msg == nil {
			msg = upd.Message
		}
		if msg != nil {
			t.recent = append(t.recent, *msg)
		}
	}
	if len(t.recent) > telegramBufferSize {
		t.recent = append([]telegramMessage(nil), t.recent[len(t.recent)-telegramBufferSize:]...)
	}

	return append([]telegramMessage(nil), t.recent...), nil
}
