package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/models"
)

// SQLStore persists cases, mentions and alerts in PostgreSQL or SQLite.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ MentionStore = (*SQLStore)(nil)

// Open connects to the database and creates the schema when missing
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var driverName string
	switch driver {
	case config.DriverPostgres:
		driverName = "postgres"
	case config.DriverSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == config.DriverSQLite {
		// one writer; an in-memory database also lives on a single connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}

	if driver == config.DriverSQLite && dsn != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logrus.WithField("driver", driver).Info("Database ready")
	return s, nil
}

func (s *SQLStore) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL DEFAULT '[]',
			platforms TEXT NOT NULL DEFAULT '[]',
			filters TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			interval_minutes INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mentions (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			external_id TEXT NOT NULL,
			content TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			author_handle TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMP NOT NULL,
			discovered_at TIMESTAMP NOT NULL,
			sentiment TEXT NOT NULL DEFAULT '',
			sentiment_score INTEGER NOT NULL DEFAULT 0,
			urgency_score INTEGER NOT NULL DEFAULT 5,
			keywords_matched TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'new',
			metadata TEXT NOT NULL DEFAULT '{}',
			UNIQUE (case_id, platform, external_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_case_published ON mentions (case_id, published_at DESC)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			mention_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'new',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_case ON alerts (case_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMentions inserts the batch in one transaction. IDs are generated for
// mentions that have none.
func (s *SQLStore) InsertMentions(ctx context.Context, caseID string, mentions []models.Mention) ([]models.Mention, error) {
	if len(mentions) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO mentions (
			id, case_id, platform, external_id, content, author_name, author_handle,
			url, published_at, discovered_at, sentiment, sentiment_score, urgency_score,
			keywords_matched, status, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (case_id, platform, external_id) DO NOTHING`))
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := make([]models.Mention, 0, len(mentions))

	for _, m := range mentions {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.CaseID = caseID
		if m.DiscoveredAt.IsZero() {
			m.DiscoveredAt = now
		}
		if m.PublishedAt.IsZero() {
			m.PublishedAt = m.DiscoveredAt
		}
		if m.Status == "" {
			m.Status = "new"
		}

		keywords, err := json.Marshal(nonNilStrings(m.KeywordsMatched))
		if err != nil {
			return nil, fmt.Errorf("encode keywords for %s: %w", m.ExternalID, err)
		}
		metadata, err := json.Marshal(nonNilMap(m.Metadata))
		if err != nil {
			return nil, fmt.Errorf("encode metadata for %s: %w", m.ExternalID, err)
		}

		result, err := stmt.ExecContext(ctx,
			m.ID, caseID, m.Platform, m.ExternalID, m.Content, m.AuthorName, m.AuthorHandle,
			m.URL, m.PublishedAt.UTC(), m.DiscoveredAt.UTC(), m.Sentiment, m.SentimentScore, m.UrgencyScore,
			string(keywords), m.Status, string(metadata),
		)
		if err != nil {
			return nil, fmt.Errorf("insert mention %s/%s: %w", m.Platform, m.ExternalID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			inserted = append(inserted, m)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mentions: %w", err)
	}

	return inserted, nil
}

// FindExistingExternalIDs returns the keys already stored for the case
func (s *SQLStore) FindExistingExternalIDs(ctx context.Context, caseID string, keys []models.MentionKey) ([]models.MentionKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	wanted := make(map[models.MentionKey]bool, len(keys))
	ids := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
		if !seen[k.ExternalID] {
			seen[k.ExternalID] = true
			ids = append(ids, k.ExternalID)
		}
	}

	var (
		rows *sql.Rows
		err  error
	)
	if s.driver == config.DriverPostgres {
		rows, err = s.db.QueryContext(ctx,
			`SELECT platform, external_id FROM mentions WHERE case_id = $1 AND external_id = ANY($2)`,
			caseID, pq.Array(ids))
	} else {
		args := make([]any, 0, len(ids)+1)
		args = append(args, caseID)
		for _, id := range ids {
			args = append(args, id)
		}
		query := `SELECT platform, external_id FROM mentions WHERE case_id = ? AND external_id IN (` +
			placeholders(len(ids)) + `)`
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("query existing mentions: %w", err)
	}
	defer rows.Close()

	var existing []models.MentionKey
	for rows.Next() {
		var k models.MentionKey
		if err := rows.Scan(&k.Platform, &k.ExternalID); err != nil {
			return nil, fmt.Errorf("scan existing mention: %w", err)
		}
		if wanted[k] {
			existing = append(existing, k)
		}
	}
	return existing, rows.Err()
}

const caseColumns = `id, name, keywords, platforms, filters, status, interval_minutes, updated_at`

// LoadActiveCases returns every case whose status is active
func (s *SQLStore) LoadActiveCases(ctx context.Context) ([]models.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+caseColumns+` FROM cases WHERE status = ? ORDER BY id`),
		models.CaseStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query active cases: %w", err)
	}
	defer rows.Close()

	var cases []models.CaseRecord
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// GetCase returns one case by ID
func (s *SQLStore) GetCase(ctx context.Context, id string) (models.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+caseColumns+` FROM cases WHERE id = ?`), id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return c, err
}

// UpsertCase creates or replaces a case
func (s *SQLStore) UpsertCase(ctx context.Context, c models.CaseRecord) error {
	if c.ID == "" {
		return fmt.Errorf("case id is required")
	}
	if c.Status == "" {
		c.Status = models.CaseStatusActive
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO cases (`+caseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			keywords = excluded.keywords,
			platforms = excluded.platforms,
			filters = excluded.filters,
			status = excluded.status,
			interval_minutes = excluded.interval_minutes,
			updated_at = excluded.updated_at`),
		c.ID, c.Name, c.Keywords, c.Platforms, c.Filters, c.Status, c.IntervalMinutes, c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert case %s: %w", c.ID, err)
	}
	return nil
}

// ListMentions returns the most recently published mentions of a case
func (s *SQLStore) ListMentions(ctx context.Context, caseID string, limit int) ([]models.Mention, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, case_id, platform, external_id, content, author_name, author_handle,
			url, published_at, discovered_at, sentiment, sentiment_score, urgency_score,
			keywords_matched, status, metadata
		FROM mentions
		WHERE case_id = ?
		ORDER BY published_at DESC
		LIMIT ?`), caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	var mentions []models.Mention
	for rows.Next() {
		var (
			m        models.Mention
			keywords string
			metadata string
		)
		if err := rows.Scan(
			&m.ID, &m.CaseID, &m.Platform, &m.ExternalID, &m.Content, &m.AuthorName, &m.AuthorHandle,
			&m.URL, &m.PublishedAt, &m.DiscoveredAt, &m.Sentiment, &m.SentimentScore, &m.UrgencyScore,
			&keywords, &m.Status, &metadata,
		); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &m.KeywordsMatched); err != nil {
			logrus.WithError(err).WithField("mention_id", m.ID).Warn("Invalid keywords_matched column")
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
				logrus.WithError(err).WithField("mention_id", m.ID).Warn("Invalid metadata column")
			}
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// InsertAlerts stores alerts, generating IDs where missing
func (s *SQLStore) InsertAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.rebind(`
		INSERT INTO alerts (id, case_id, mention_id, type, severity, title, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for i := range alerts {
		a := &alerts[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.CaseID, a.MentionID, a.Type, a.Severity, a.Title, a.Description, a.Status, a.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert alert for mention %s: %w", a.MentionID, err)
		}
	}

	return tx.Commit()
}

// CountAlerts returns the number of alerts stored for a case
func (s *SQLStore) CountAlerts(ctx context.Context, caseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM alerts WHERE case_id = ?`), caseID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (models.CaseRecord, error) {
	var c models.CaseRecord
	err := row.Scan(&c.ID, &c.Name, &c.Keywords, &c.Platforms, &c.Filters, &c.Status, &c.IntervalMinutes, &c.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("scan case: %w", err)
	}
	return c, err
}

// rebind turns ? placeholders into $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.driver != config.DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
