package monitoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/sources"
	"github.com/socialguard/mentions-monitor/internal/storage"
)

var errUpstream = errors.New("upstream returned 503")

type searchFunc func(ctx context.Context, keywords []string, filters models.Filters) ([]models.Mention, error)

// fakeSource is a Source whose behaviour is scripted by the test
type fakeSource struct {
	name     string
	disabled bool
	search   searchFunc
	calls    atomic.Int32
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) IsEnabled() bool { return !f.disabled }

func (f *fakeSource) Search(ctx context.Context, keywords []string, filters models.Filters) ([]models.Mention, error) {
	f.calls.Add(1)
	return f.search(ctx, keywords, filters)
}

func returning(mentions ...models.Mention) searchFunc {
	return func(context.Context, []string, models.Filters) ([]models.Mention, error) {
		out := make([]models.Mention, len(mentions))
		copy(out, mentions)
		return out, nil
	}
}

func failing(err error) searchFunc {
	return func(context.Context, []string, models.Filters) ([]models.Mention, error) {
		return nil, err
	}
}

func mention(platform, id, content string) models.Mention {
	return models.Mention{
		Platform:    platform,
		ExternalID:  id,
		Content:     content,
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Status:      "new",
	}
}

// memStore is an in-memory MentionStore
type memStore struct {
	mu          sync.Mutex
	mentions    map[string]map[models.MentionKey]models.Mention
	alerts      []models.Alert
	cases       []models.CaseRecord
	findErr     error
	insertErr   error
	insertCalls int
	nextID      int
}

func newMemStore() *memStore {
	return &memStore{mentions: make(map[string]map[models.MentionKey]models.Mention)}
}

func (s *memStore) InsertMentions(_ context.Context, caseID string, mentions []models.Mention) ([]models.Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertCalls++
	if s.insertErr != nil {
		return nil, s.insertErr
	}

	stored, ok := s.mentions[caseID]
	if !ok {
		stored = make(map[models.MentionKey]models.Mention)
		s.mentions[caseID] = stored
	}

	var inserted []models.Mention
	for _, m := range mentions {
		if _, dup := stored[m.Key()]; dup {
			continue
		}
		s.nextID++
		m.ID = fmt.Sprintf("m-%04d", s.nextID)
		m.CaseID = caseID
		stored[m.Key()] = m
		inserted = append(inserted, m)
	}
	return inserted, nil
}

func (s *memStore) FindExistingExternalIDs(_ context.Context, caseID string, keys []models.MentionKey) ([]models.MentionKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findErr != nil {
		return nil, s.findErr
	}

	var existing []models.MentionKey
	for _, k := range keys {
		if _, ok := s.mentions[caseID][k]; ok {
			existing = append(existing, k)
		}
	}
	return existing, nil
}

func (s *memStore) LoadActiveCases(context.Context) ([]models.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []models.CaseRecord
	for _, c := range s.cases {
		if c.Status == models.CaseStatusActive {
			active = append(active, c)
		}
	}
	return active, nil
}

func (s *memStore) InsertAlerts(_ context.Context, alerts []models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alerts...)
	return nil
}

func (s *memStore) count(caseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mentions[caseID])
}

func (s *memStore) setCases(cases ...models.CaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = cases
}

// MockNotifier is a mock implementation of the notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendAlerts(ctx context.Context, caseID string, alerts []models.Alert) error {
	args := m.Called(ctx, caseID, alerts)
	return args.Error(0)
}

// MockArchive keeps archived blobs in memory
type MockArchive struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockArchive() *MockArchive {
	return &MockArchive{data: make(map[string][]byte)}
}

func (m *MockArchive) Store(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = data
	return nil
}

func (m *MockArchive) Retrieve(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[name]
	if !ok {
		return nil, errors.New("blob not found: " + name)
	}
	return data, nil
}

func (m *MockArchive) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.data {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *MockArchive) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultInterval:             15 * time.Minute,
		BreakerFailureThreshold:     3,
		BreakerTimeout:              2 * time.Second,
		BreakerResetTimeout:         time.Minute,
		RetryMaxAttempts:            3,
		RetryBaseDelay:              time.Second,
		RetryMaxDelay:               10 * time.Second,
		SourceRateLimit:             6000,
		LanguageConfidenceThreshold: 0.06,
		AlertUrgencyThreshold:       8,
	}
}

// newTestEngine builds an engine whose retry loop does not sleep
func newTestEngine(t *testing.T, store storage.MentionStore, srcs ...*fakeSource) *Engine {
	t.Helper()

	registry := sources.NewRegistry()
	for _, s := range srcs {
		registry.Register(s)
	}

	e := NewEngine(testConfig(), registry, store, nil, nil)
	e.retry.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

// addJob registers a job without scheduling it so ticks run only when the
// test calls them
func addJob(e *Engine, job models.MonitoringJob) {
	if err := e.AddJob(job); err != nil {
		panic(err)
	}
}
