// Package monitoring owns the per-case monitoring jobs: it schedules ticks,
// fans each tick out to the configured sources and runs the results through
// the filter, dedup and persistence pipeline.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/language"
	"github.com/socialguard/mentions-monitor/internal/metrics"
	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/notifications"
	"github.com/socialguard/mentions-monitor/internal/resilience"
	"github.com/socialguard/mentions-monitor/internal/scheduler"
	"github.com/socialguard/mentions-monitor/internal/search"
	"github.com/socialguard/mentions-monitor/internal/sources"
	"github.com/socialguard/mentions-monitor/internal/storage"
)

var (
	// ErrJobNotFound is returned for a case without a monitoring job
	ErrJobNotFound = errors.New("monitoring job not found")
	// ErrScanInProgress is returned when the case's previous tick is still running
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrEngineClosed is returned once Shutdown has been called
	ErrEngineClosed = errors.New("monitoring engine is shut down")
)

const caseSyncKey = "__case_sync__"

// Engine is the monitoring engine. One instance owns every job, source
// breaker and statistic of the process.
type Engine struct {
	config    *config.Config
	registry  *sources.Registry
	store     storage.MentionStore
	notifier  notifications.Notifier
	archive   storage.Archive
	scheduler *scheduler.Service
	tracker   *metrics.Tracker
	detector  *language.Detector
	retry     resilience.RetryPolicy

	keywordFilter  func(mentions []models.Mention, groups search.Groups) []models.Mention
	languageFilter func(mentions []models.Mention, filters models.Filters) []models.Mention

	rtMu     sync.Mutex
	runtimes map[string]*sourceRuntime

	mu     sync.Mutex
	jobs   map[string]*models.MonitoringJob
	stats  counters
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	ticks  sync.WaitGroup
}

type counters struct {
	totalMentions int64
	newMentions   int64
	errorsCount   int64
	skippedTicks  int64
	lastRun       time.Time
}

// NewEngine creates a stopped engine. notifier and archive are optional.
func NewEngine(cfg *config.Config, registry *sources.Registry, store storage.MentionStore, notifier notifications.Notifier, archive storage.Archive) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		config:    cfg,
		registry:  registry,
		store:     store,
		notifier:  notifier,
		archive:   archive,
		scheduler: scheduler.NewService(),
		tracker:   metrics.NewTracker(),
		detector:  language.NewDetector(),
		retry: resilience.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		runtimes: make(map[string]*sourceRuntime),
		jobs:     make(map[string]*models.MonitoringJob),
		ctx:      ctx,
		cancel:   cancel,
	}

	e.keywordFilter = search.Filter
	e.languageFilter = func(mentions []models.Mention, filters models.Filters) []models.Mention {
		return e.detector.Filter(mentions, filters, cfg.LanguageConfidenceThreshold)
	}

	for _, name := range registry.Names() {
		e.runtimeFor(name)
	}

	if worst := cfg.WorstCaseSourceLatency(); worst >= cfg.DefaultInterval {
		logrus.Warnf("Worst-case source latency %v is not below the default interval %v; ticks will overlap and be skipped", worst, cfg.DefaultInterval)
	}

	return e
}

// Start runs the scheduler and, when schedule is not empty, re-syncs the
// active cases on that cron schedule.
func (e *Engine) Start(schedule string) error {
	if schedule != "" {
		err := e.scheduler.Cron(caseSyncKey, schedule, func() {
			if _, err := e.SyncActiveCases(e.ctx); err != nil {
				logrus.Errorf("Scheduled case sync failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	e.scheduler.Start()
	logrus.Info("Monitoring engine started")
	return nil
}

// StartMonitoringJob schedules job, replacing any existing timer for the same
// case, and runs one tick immediately.
func (e *Engine) StartMonitoringJob(job models.MonitoringJob) error {
	if job.CaseID == "" {
		return fmt.Errorf("case id is required")
	}
	if job.Interval <= 0 {
		job.Interval = e.config.DefaultInterval
	}
	job.IsRunning = false
	job.LastRun = time.Time{}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.scheduler.Cancel(job.CaseID)
	e.jobs[job.CaseID] = &job
	caseID := job.CaseID
	err := e.scheduler.Every(caseID, job.Interval, func() { e.tick(caseID) })
	if err != nil {
		delete(e.jobs, caseID)
	}
	metrics.ActiveJobs.Set(float64(len(e.jobs)))
	e.mu.Unlock()

	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"case_id":   caseID,
		"interval":  job.Interval,
		"platforms": job.Platforms,
	}).Info("Monitoring job started")

	go e.tick(caseID)
	return nil
}

// AddJob registers job without a timer. Its ticks run only through
// TriggerManualScan.
func (e *Engine) AddJob(job models.MonitoringJob) error {
	if job.CaseID == "" {
		return fmt.Errorf("case id is required")
	}
	if job.Interval <= 0 {
		job.Interval = e.config.DefaultInterval
	}
	job.IsRunning = false

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	e.scheduler.Cancel(job.CaseID)
	e.jobs[job.CaseID] = &job
	metrics.ActiveJobs.Set(float64(len(e.jobs)))
	return nil
}

// StopMonitoringJob cancels the timer of a case and forgets its job. An
// in-flight tick is left to finish. Unknown cases are ignored.
func (e *Engine) StopMonitoringJob(caseID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancelled := e.scheduler.Cancel(caseID)
	if _, ok := e.jobs[caseID]; ok {
		delete(e.jobs, caseID)
		cancelled = true
	}
	metrics.ActiveJobs.Set(float64(len(e.jobs)))

	if cancelled {
		logrus.WithField("case_id", caseID).Info("Monitoring job stopped")
	}
}

// Scan runs one tick for the case now, waits for it and returns the number
// of new mentions. Errors wrap ErrJobNotFound or ErrScanInProgress when the
// tick could not start.
func (e *Engine) Scan(caseID string) (int, error) {
	return e.runMonitoringJob(caseID)
}

// TriggerManualScan is Scan with failures reported in the result, never
// returned.
func (e *Engine) TriggerManualScan(caseID string) models.ScanResult {
	inserted, err := e.Scan(caseID)
	if err != nil {
		return models.ScanResult{Success: false, MentionsFound: 0, Error: err.Error()}
	}
	return models.ScanResult{Success: true, MentionsFound: inserted}
}

// Shutdown stops every job and waits for in-flight ticks until ctx expires
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	stopped := e.scheduler.Stop()
	e.scheduler.CancelAll()
	e.jobs = make(map[string]*models.MonitoringJob)
	metrics.ActiveJobs.Set(0)
	e.mu.Unlock()

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.ticks.Wait()
		<-stopped.Done()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Monitoring engine shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight ticks: %w", ctx.Err())
	}
}

// GetActiveJobs returns a copy of every job ordered by case ID
func (e *Engine) GetActiveJobs() []models.MonitoringJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	jobs := make([]models.MonitoringJob, 0, len(e.jobs))
	for _, job := range e.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CaseID < jobs[j].CaseID })
	return jobs
}

// HasJob reports whether the case has a scheduled job
func (e *Engine) HasJob(caseID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.jobs[caseID]
	return ok
}

// GetCircuitBreakerStatus returns the breaker state of every source
func (e *Engine) GetCircuitBreakerStatus() map[string]resilience.BreakerStatus {
	e.rtMu.Lock()
	defer e.rtMu.Unlock()

	status := make(map[string]resilience.BreakerStatus, len(e.runtimes))
	for name, rt := range e.runtimes {
		status[name] = rt.breaker.Status()
	}
	return status
}

// GetPlatformMetrics returns the call statistics of every source called so far
func (e *Engine) GetPlatformMetrics() []metrics.PlatformMetrics {
	return e.tracker.Snapshot()
}
