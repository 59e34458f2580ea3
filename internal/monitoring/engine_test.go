package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/resilience"
	"github.com/socialguard/mentions-monitor/internal/search"
	"github.com/socialguard/mentions-monitor/internal/sources"
	"github.com/socialguard/mentions-monitor/internal/storage"
)

func TestRunMonitoringJob_PartialFailure(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(
		mention("reddit", "r1", "acme release notes"),
		mention("reddit", "r2", "acme is great"),
	)}
	hn := &fakeSource{name: "hackernews", search: returning(mention("hackernews", "h1", "Show HN: acme"))}
	youtube := &fakeSource{name: "youtube", search: failing(resilience.Permanent(errors.New("quota exceeded")))}

	e := newTestEngine(t, store, reddit, hn, youtube)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit", "hackernews", "youtube"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 3, store.count("case-1"))

	stats := e.GetStats()
	assert.Equal(t, int64(1), stats.ErrorsCount)
	assert.Equal(t, int64(3), stats.TotalMentions)
	assert.Equal(t, int64(3), stats.NewMentions)
	assert.False(t, stats.LastRun.IsZero())
}

func TestRunMonitoringJob_AllPlatformsWhenNoneListed(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme"))}
	hn := &fakeSource{name: "hackernews", search: returning(mention("hackernews", "h1", "acme"))}
	telegram := &fakeSource{name: "telegram", disabled: true, search: returning(mention("telegram", "t1", "acme"))}

	e := newTestEngine(t, store, reddit, hn, telegram)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, int32(0), telegram.calls.Load())
	assert.Equal(t, int64(0), e.GetStats().ErrorsCount)
}

func TestRunMonitoringJob_UnknownPlatformCountsAsError(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme"))}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit", "myspace"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, int64(1), e.GetStats().ErrorsCount)
}

func TestRunMonitoringJob_MissingPlatformIsFilledIn(t *testing.T) {
	store := newMemStore()
	m := mention("", "x1", "acme")
	reddit := &fakeSource{name: "reddit", search: returning(m)}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	_, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)

	existing, err := store.FindExistingExternalIDs(context.Background(), "case-1", []models.MentionKey{{Platform: "reddit", ExternalID: "x1"}})
	require.NoError(t, err)
	assert.Len(t, existing, 1)
}

func TestRunMonitoringJob_DeduplicatesAcrossTicks(t *testing.T) {
	store, err := storage.Open(context.Background(), config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reddit := &fakeSource{name: "reddit", search: returning(
		mention("reddit", "r1", "acme one"),
		mention("reddit", "r1", "acme one again"),
		mention("reddit", "r2", "acme two"),
	)}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	stored, err := store.ListMentions(context.Background(), "case-1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, int64(2), e.GetStats().TotalMentions)
}

func TestRunMonitoringJob_SameExternalIDOnOtherPlatform(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "42", "acme"))}
	hn := &fakeSource{name: "hackernews", search: returning(mention("hackernews", "42", "acme"))}

	e := newTestEngine(t, store, reddit, hn)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit", "hackernews"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
}

func TestRunMonitoringJob_KeywordFilter(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(
		mention("reddit", "r1", "Acme is slow today"),
		mention("reddit", "r2", "Acme is fast"),
		mention("reddit", "r3", "nothing relevant"),
	)}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{`"acme" -"fast"`}, Platforms: []string{"reddit"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	existing, err := store.FindExistingExternalIDs(context.Background(), "case-1", []models.MentionKey{
		{Platform: "reddit", ExternalID: "r1"},
		{Platform: "reddit", ExternalID: "r2"},
		{Platform: "reddit", ExternalID: "r3"},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.MentionKey{{Platform: "reddit", ExternalID: "r1"}}, existing)
}

func TestRunMonitoringJob_LanguageFilter(t *testing.T) {
	tests := []struct {
		name     string
		filters  models.Filters
		expected []string
	}{
		{
			name:     "no rules keeps everything",
			expected: []string{"en1", "fr1"},
		},
		{
			name:     "deny list",
			filters:  models.Filters{ExcludeLanguages: []string{"fr"}},
			expected: []string{"en1"},
		},
		{
			name:     "allow list",
			filters:  models.Filters{Languages: []string{"fr"}},
			expected: []string{"fr1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			reddit := &fakeSource{name: "reddit", search: returning(
				mention("reddit", "fr1", "Bonjour, le produit est très bien"),
				mention("reddit", "en1", "The product is really good and I love it"),
			)}

			e := newTestEngine(t, store, reddit)
			addJob(e, models.MonitoringJob{CaseID: "case-1", Platforms: []string{"reddit"}, Filters: tt.filters})

			_, err := e.runMonitoringJob("case-1")
			require.NoError(t, err)

			var kept []string
			for _, id := range []string{"en1", "fr1"} {
				existing, err := store.FindExistingExternalIDs(context.Background(), "case-1", []models.MentionKey{{Platform: "reddit", ExternalID: id}})
				require.NoError(t, err)
				if len(existing) == 1 {
					kept = append(kept, id)
				}
			}
			assert.Equal(t, tt.expected, kept)
		})
	}
}

func TestRunMonitoringJob_FilterPanicPassesMentionsThrough(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(
		mention("reddit", "r1", "acme"),
		mention("reddit", "r2", "unrelated"),
	)}

	e := newTestEngine(t, store, reddit)
	e.keywordFilter = func([]models.Mention, search.Groups) []models.Mention { panic("bad pattern") }
	e.languageFilter = func([]models.Mention, models.Filters) []models.Mention { panic("detector crashed") }
	addJob(e, models.MonitoringJob{
		CaseID:    "case-1",
		Keywords:  []string{"acme"},
		Platforms: []string{"reddit"},
		Filters:   models.Filters{Languages: []string{"en"}},
	})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, int64(0), e.GetStats().ErrorsCount)
}

func TestRunMonitoringJob_Reentrancy(t *testing.T) {
	store := newMemStore()
	started := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool

	reddit := &fakeSource{name: "reddit", search: func(ctx context.Context, _ []string, _ models.Filters) ([]models.Mention, error) {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []models.Mention{mention("reddit", "r1", "acme")}, nil
	}}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	done := make(chan error, 1)
	go func() {
		_, err := e.runMonitoringJob("case-1")
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first tick never reached the source")
	}

	_, err := e.Scan("case-1")
	assert.ErrorIs(t, err, ErrScanInProgress)

	result := e.TriggerManualScan("case-1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "scan already in progress")

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), reddit.calls.Load())
	store.mu.Lock()
	assert.Equal(t, 1, store.insertCalls)
	store.mu.Unlock()

	stats := e.GetStats()
	assert.Equal(t, int64(2), stats.SkippedTicks)
	assert.Equal(t, int64(0), stats.ErrorsCount)

	// the flag is cleared once the tick completes
	jobs := e.GetActiveJobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].IsRunning)
}

func TestTriggerManualScan(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(
		mention("reddit", "r1", "acme"),
		mention("reddit", "r2", "acme again"),
	)}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	result := e.TriggerManualScan("case-1")
	assert.Equal(t, models.ScanResult{Success: true, MentionsFound: 2}, result)

	result = e.TriggerManualScan("case-1")
	assert.Equal(t, models.ScanResult{Success: true, MentionsFound: 0}, result)
}

func TestTriggerManualScan_UnknownCase(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	result := e.TriggerManualScan("missing")
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.MentionsFound)
	assert.Contains(t, result.Error, "monitoring job not found")

	_, err := e.Scan("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunMonitoringJob_DedupFallback(t *testing.T) {
	store := newMemStore()
	store.findErr = errors.New("connection reset")
	reddit := &fakeSource{name: "reddit", search: returning(
		mention("reddit", "r1", "acme"),
		mention("reddit", "r1", "acme duplicate in batch"),
	)}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	// without the existence check the store's unique key still holds
	inserted, err = e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	store.mu.Lock()
	assert.Equal(t, 2, store.insertCalls)
	store.mu.Unlock()
}

func TestRunMonitoringJob_InsertFailure(t *testing.T) {
	store := newMemStore()
	store.insertErr = errors.New("disk full")
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme"))}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	result := e.TriggerManualScan("case-1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "persist mentions")
	assert.Contains(t, result.Error, "disk full")

	stats := e.GetStats()
	assert.Equal(t, int64(1), stats.ErrorsCount)
	assert.Equal(t, int64(0), stats.TotalMentions)

	jobs := e.GetActiveJobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].IsRunning)
}

func TestRunMonitoringJob_SourcePanicIsIsolated(t *testing.T) {
	store := newMemStore()
	broken := &fakeSource{name: "youtube", search: func(context.Context, []string, models.Filters) ([]models.Mention, error) {
		panic("nil pointer in decoder")
	}}
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme"))}

	e := newTestEngine(t, store, broken, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"youtube", "reddit"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, int64(1), e.GetStats().ErrorsCount)
}

func TestRunMonitoringJob_AlertsAndArchive(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(
		mention("reddit", "r1", "acme is a scam and the app is down, worst ever"),
		mention("reddit", "r2", "acme shipped a new feature"),
	)}

	registry := sources.NewRegistry(reddit)
	notifier := new(MockNotifier)
	notifier.On("SendAlerts", mock.Anything, "case-1", mock.MatchedBy(func(alerts []models.Alert) bool {
		return len(alerts) == 1 && alerts[0].Mention != nil && alerts[0].Mention.ExternalID == "r1"
	})).Return(nil).Once()
	archive := NewMockArchive()

	e := NewEngine(testConfig(), registry, store, notifier, archive)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	notifier.AssertExpectations(t)

	store.mu.Lock()
	require.Len(t, store.alerts, 1)
	alert := store.alerts[0]
	store.mu.Unlock()
	assert.Equal(t, "case-1", alert.CaseID)
	assert.Equal(t, "critical", alert.Severity)
	assert.NotEmpty(t, alert.MentionID)

	names, err := archive.List(context.Background(), "mentions/case-1/")
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestRunMonitoringJob_NotifierFailureDoesNotFailTick(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme outage: the service is down, worst day"))}

	notifier := new(MockNotifier)
	notifier.On("SendAlerts", mock.Anything, "case-1", mock.Anything).Return(errors.New("webhook 500"))

	e := NewEngine(testConfig(), sources.NewRegistry(reddit), store, notifier, nil)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	result := e.TriggerManualScan("case-1")
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.MentionsFound)
	notifier.AssertNumberOfCalls(t, "SendAlerts", 1)
}

func TestRunMonitoringJob_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: failing(errUpstream)}

	e := newTestEngine(t, store, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	_, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), reddit.calls.Load())
	assert.Equal(t, resilience.StateOpen, e.GetCircuitBreakerStatus()["reddit"].State)

	// an open breaker rejects without calling the source or retrying
	_, err = e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), reddit.calls.Load())
	assert.Equal(t, int64(2), e.GetStats().ErrorsCount)

	metrics := e.GetPlatformMetrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, int64(2), metrics[0].FailedCalls)
}

func TestRunMonitoringJob_TerminalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", resilience.Permanent(errors.New("invalid credentials"))},
		{"unauthorized status", &sources.StatusError{Source: "reddit", StatusCode: 401}},
		{"not found status", &sources.StatusError{Source: "reddit", StatusCode: 404}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reddit := &fakeSource{name: "reddit", search: failing(tt.err)}
			e := newTestEngine(t, newMemStore(), reddit)
			addJob(e, models.MonitoringJob{CaseID: "case-1", Platforms: []string{"reddit"}})

			_, err := e.runMonitoringJob("case-1")
			require.NoError(t, err)
			assert.Equal(t, int32(1), reddit.calls.Load())
			assert.Equal(t, resilience.StateClosed, e.GetCircuitBreakerStatus()["reddit"].State)
		})
	}
}

func TestRunMonitoringJob_TransientErrorRecovers(t *testing.T) {
	var attempts atomic.Int32
	reddit := &fakeSource{name: "reddit", search: func(context.Context, []string, models.Filters) ([]models.Mention, error) {
		if attempts.Add(1) < 3 {
			return nil, &sources.StatusError{Source: "reddit", StatusCode: 503}
		}
		return []models.Mention{mention("reddit", "r1", "acme")}, nil
	}}

	e := newTestEngine(t, newMemStore(), reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	inserted, err := e.runMonitoringJob("case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, int32(3), reddit.calls.Load())
	assert.Equal(t, int64(0), e.GetStats().ErrorsCount)
}

func TestStartMonitoringJob_RestartKeepsSingleTimer(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme"))}

	e := newTestEngine(t, store, reddit)
	require.NoError(t, e.Start(""))

	job := models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}, Interval: time.Second}
	require.NoError(t, e.StartMonitoringJob(job))
	e.StopMonitoringJob("case-1")
	require.NoError(t, e.StartMonitoringJob(job))
	require.NoError(t, e.StartMonitoringJob(job))

	// let the immediate ticks of the replaced starts drain
	time.Sleep(200 * time.Millisecond)
	before := reddit.calls.Load()

	time.Sleep(2500 * time.Millisecond)
	after := reddit.calls.Load() - before

	// one timer firing every second, never three
	assert.GreaterOrEqual(t, after, int32(2))
	assert.LessOrEqual(t, after, int32(3))
	assert.Len(t, e.GetActiveJobs(), 1)
}

func TestStartMonitoringJob_RunsImmediately(t *testing.T) {
	store := newMemStore()
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme"))}

	e := newTestEngine(t, store, reddit)
	require.NoError(t, e.StartMonitoringJob(models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}}))

	assert.Eventually(t, func() bool { return store.count("case-1") == 1 }, time.Second, 10*time.Millisecond)

	jobs := e.GetActiveJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 15*time.Minute, jobs[0].Interval)
}

func TestStartMonitoringJob_RequiresCaseID(t *testing.T) {
	e := newTestEngine(t, newMemStore())
	assert.Error(t, e.StartMonitoringJob(models.MonitoringJob{}))
}

func TestStopMonitoringJob(t *testing.T) {
	reddit := &fakeSource{name: "reddit", search: returning()}
	e := newTestEngine(t, newMemStore(), reddit)

	require.NoError(t, e.StartMonitoringJob(models.MonitoringJob{CaseID: "case-1", Platforms: []string{"reddit"}}))
	assert.True(t, e.HasJob("case-1"))

	e.StopMonitoringJob("case-1")
	assert.False(t, e.HasJob("case-1"))
	assert.Empty(t, e.GetActiveJobs())

	// stopping an unknown case is a no-op
	e.StopMonitoringJob("never-started")
	assert.Empty(t, e.GetActiveJobs())
}

func TestShutdown_WaitsForInFlightTick(t *testing.T) {
	store := newMemStore()
	started := make(chan struct{})
	var once atomic.Bool
	reddit := &fakeSource{name: "reddit", search: func(ctx context.Context, _ []string, _ models.Filters) ([]models.Mention, error) {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	e := newTestEngine(t, store, reddit)
	require.NoError(t, e.StartMonitoringJob(models.MonitoringJob{CaseID: "case-1", Platforms: []string{"reddit"}}))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("tick never reached the source")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	assert.Empty(t, e.GetActiveJobs())
	assert.ErrorIs(t, e.StartMonitoringJob(models.MonitoringJob{CaseID: "case-2"}), ErrEngineClosed)

	result := e.TriggerManualScan("case-1")
	assert.False(t, result.Success)

	// shutting down twice is harmless
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestGetStats(t *testing.T) {
	reddit := &fakeSource{name: "reddit", search: returning()}
	hn := &fakeSource{name: "hackernews", search: returning()}

	e := newTestEngine(t, newMemStore(), reddit, hn)
	require.NoError(t, e.Start(""))
	require.NoError(t, e.StartMonitoringJob(models.MonitoringJob{CaseID: "case-1", Platforms: []string{"reddit"}, Interval: time.Minute}))
	require.NoError(t, e.StartMonitoringJob(models.MonitoringJob{CaseID: "case-2", Platforms: []string{"hackernews"}, Interval: 10 * time.Minute}))

	stats := e.GetStats()
	assert.Equal(t, 2, stats.ActiveJobs)
	assert.WithinDuration(t, time.Now().Add(time.Minute), stats.NextRun, 2*time.Second)

	require.Contains(t, stats.RateLimitBySource, "reddit")
	require.Contains(t, stats.RateLimitBySource, "hackernews")
	assert.Equal(t, 6000, stats.RateLimitBySource["reddit"].LimitPerMinute)

	breakers := e.GetCircuitBreakerStatus()
	assert.Len(t, breakers, 2)
	assert.Equal(t, resilience.StateClosed, breakers["hackernews"].State)
}

func TestGetStats_NoJobs(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	stats := e.GetStats()
	assert.Equal(t, 0, stats.ActiveJobs)
	assert.True(t, stats.NextRun.IsZero())
	assert.True(t, stats.LastRun.IsZero())
	assert.Empty(t, stats.Platforms)
}

func TestAddJob(t *testing.T) {
	e := newTestEngine(t, newMemStore())

	require.NoError(t, e.AddJob(models.MonitoringJob{CaseID: "case-1"}))
	assert.True(t, e.HasJob("case-1"))
	assert.Equal(t, 0, e.scheduler.Len())
	assert.Equal(t, 15*time.Minute, e.GetActiveJobs()[0].Interval)

	assert.Error(t, e.AddJob(models.MonitoringJob{}))

	require.NoError(t, e.Shutdown(context.Background()))
	assert.ErrorIs(t, e.AddJob(models.MonitoringJob{CaseID: "case-2"}), ErrEngineClosed)
}

type panickingStore struct {
	*memStore
}

func (p panickingStore) InsertMentions(context.Context, string, []models.Mention) ([]models.Mention, error) {
	panic("driver bug")
}

func TestRunMonitoringJob_PanicIsContainedAtTickBoundary(t *testing.T) {
	reddit := &fakeSource{name: "reddit", search: returning(mention("reddit", "r1", "acme"))}
	e := newTestEngine(t, panickingStore{newMemStore()}, reddit)
	addJob(e, models.MonitoringJob{CaseID: "case-1", Keywords: []string{"acme"}, Platforms: []string{"reddit"}})

	result := e.TriggerManualScan("case-1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tick panicked")
	assert.Equal(t, int64(1), e.GetStats().ErrorsCount)

	// the running flag was cleared, so the next tick is not skipped
	_, err := e.runMonitoringJob("case-1")
	assert.NotErrorIs(t, err, ErrScanInProgress)
	assert.Equal(t, int64(0), e.GetStats().SkippedTicks)
}
