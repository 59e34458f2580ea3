package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMention(platform, externalID, content string) models.Mention {
	return models.Mention{
		Platform:        platform,
		ExternalID:      externalID,
		Content:         content,
		PublishedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		KeywordsMatched: []string{"acme"},
		UrgencyScore:    5,
		Metadata:        map[string]interface{}{"subreddit": "golang"},
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestInsertMentions_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []models.Mention{
		testMention(models.PlatformReddit, "abc", "acme is great"),
		testMention(models.PlatformYouTube, "video_1", "acme review"),
	}

	first, err := s.InsertMentions(ctx, "case-1", batch)
	require.NoError(t, err)
	require.Len(t, first, 2)
	for _, m := range first {
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, "case-1", m.CaseID)
		assert.Equal(t, "new", m.Status)
	}

	second, err := s.InsertMentions(ctx, "case-1", batch)
	require.NoError(t, err)
	assert.Empty(t, second)

	stored, err := s.ListMentions(ctx, "case-1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestInsertMentions_KeyIsScopedByCaseAndPlatform(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertMentions(ctx, "case-1", []models.Mention{testMention(models.PlatformReddit, "123", "acme")})
	require.NoError(t, err)

	// same external id on another platform and in another case are distinct mentions
	inserted, err := s.InsertMentions(ctx, "case-1", []models.Mention{testMention(models.PlatformHackerNews, "123", "acme")})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	inserted, err = s.InsertMentions(ctx, "case-2", []models.Mention{testMention(models.PlatformReddit, "123", "acme")})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)
}

func TestFindExistingExternalIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertMentions(ctx, "case-1", []models.Mention{
		testMention(models.PlatformReddit, "a", "acme"),
		testMention(models.PlatformReddit, "b", "acme"),
	})
	require.NoError(t, err)

	existing, err := s.FindExistingExternalIDs(ctx, "case-1", []models.MentionKey{
		{Platform: models.PlatformReddit, ExternalID: "a"},
		{Platform: models.PlatformMastodon, ExternalID: "b"},
		{Platform: models.PlatformReddit, ExternalID: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.MentionKey{{Platform: models.PlatformReddit, ExternalID: "a"}}, existing)

	existing, err = s.FindExistingExternalIDs(ctx, "case-2", []models.MentionKey{
		{Platform: models.PlatformReddit, ExternalID: "a"},
	})
	require.NoError(t, err)
	assert.Empty(t, existing)

	existing, err = s.FindExistingExternalIDs(ctx, "case-1", nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestListMentions_DecodesColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMention(models.PlatformReddit, "abc", "acme is great")
	m.Sentiment = "positive"
	m.SentimentScore = 3
	_, err := s.InsertMentions(ctx, "case-1", []models.Mention{m})
	require.NoError(t, err)

	stored, err := s.ListMentions(ctx, "case-1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	got := stored[0]
	assert.Equal(t, "acme is great", got.Content)
	assert.Equal(t, []string{"acme"}, got.KeywordsMatched)
	assert.Equal(t, "golang", got.Metadata["subreddit"])
	assert.Equal(t, 3, got.SentimentScore)
	assert.Equal(t, "positive", got.Sentiment)
	assert.True(t, got.PublishedAt.Equal(m.PublishedAt))
}

func TestCases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCase(ctx, models.CaseRecord{
		ID: "case-1", Name: "Acme", Keywords: `["acme"]`, Platforms: `["reddit"]`, IntervalMinutes: 10,
	}))
	require.NoError(t, s.UpsertCase(ctx, models.CaseRecord{
		ID: "case-2", Name: "Paused", Keywords: `["x"]`, Platforms: `["reddit"]`, Status: models.CaseStatusPaused,
	}))

	active, err := s.LoadActiveCases(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "case-1", active[0].ID)
	assert.Equal(t, 10, active[0].IntervalMinutes)

	require.NoError(t, s.UpsertCase(ctx, models.CaseRecord{
		ID: "case-1", Name: "Acme", Keywords: `["acme"]`, Platforms: `["reddit"]`, Status: models.CaseStatusArchived,
	}))
	active, err = s.LoadActiveCases(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	c, err := s.GetCase(ctx, "case-2")
	require.NoError(t, err)
	assert.Equal(t, "Paused", c.Name)

	_, err = s.GetCase(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.UpsertCase(ctx, models.CaseRecord{}))
}

func TestInsertAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alerts := []models.Alert{
		{CaseID: "case-1", MentionID: "m1", Type: "keyword_match", Severity: "critical", Title: "t", Status: "new"},
		{CaseID: "case-1", MentionID: "m2", Type: "sentiment_drop", Severity: "high", Title: "t", Status: "new"},
	}
	require.NoError(t, s.InsertAlerts(ctx, alerts))
	assert.NotEmpty(t, alerts[0].ID)

	n, err := s.CountAlerts(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.InsertAlerts(ctx, nil))
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: config.DriverPostgres}
	lite := &SQLStore{driver: config.DriverSQLite}

	q := `SELECT * FROM mentions WHERE case_id = ? AND status = ?`
	assert.Equal(t, `SELECT * FROM mentions WHERE case_id = $1 AND status = $2`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
	assert.Equal(t, "?,?,?", placeholders(3))
}

func TestArchivePath(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 15, 250*int(time.Millisecond), time.UTC)
	assert.Equal(t, "mentions/case-1/2024-05-01-12-30-15.250.json", ArchivePath("case-1", at))
}
