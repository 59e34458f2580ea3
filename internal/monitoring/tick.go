package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/analysis"
	"github.com/socialguard/mentions-monitor/internal/metrics"
	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/search"
	"github.com/socialguard/mentions-monitor/internal/sources"
	"github.com/socialguard/mentions-monitor/internal/storage"
)

// tick is the timer callback. Skips and failures are already logged and
// counted by runMonitoringJob.
func (e *Engine) tick(caseID string) {
	_, _ = e.runMonitoringJob(caseID)
}

// runMonitoringJob runs one tick of a case and returns the number of
// mentions inserted. It refuses to run while the previous tick of the same
// case is still in flight.
func (e *Engine) runMonitoringJob(caseID string) (inserted int, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrEngineClosed
	}
	job, ok := e.jobs[caseID]
	if !ok {
		e.mu.Unlock()
		return 0, fmt.Errorf("case %s: %w", caseID, ErrJobNotFound)
	}
	if job.IsRunning {
		e.stats.skippedTicks++
		e.mu.Unlock()
		metrics.SkippedTicks.Inc()
		logrus.WithField("case_id", caseID).Debug("Previous tick still running, skipping")
		return 0, fmt.Errorf("case %s: %w", caseID, ErrScanInProgress)
	}
	job.IsRunning = true
	job.LastRun = time.Now()
	e.stats.lastRun = job.LastRun
	snapshot := *job
	e.ticks.Add(1)
	e.mu.Unlock()

	start := time.Now()
	log := logrus.WithField("case_id", caseID)
	log.Info("Tick started")

	defer func() {
		if r := recover(); r != nil {
			e.addErrors(1)
			metrics.Ticks.WithLabelValues("panicked").Inc()
			log.Errorf("Tick panicked: %v", r)
			inserted, err = 0, fmt.Errorf("tick panicked: %v", r)
		}

		// the job may have been stopped meanwhile; clear the flag on the
		// instance this tick started from
		e.mu.Lock()
		job.IsRunning = false
		e.mu.Unlock()

		metrics.TickDuration.Observe(time.Since(start).Seconds())
		e.ticks.Done()
	}()

	inserted, err = e.scan(e.ctx, snapshot)
	if err != nil {
		e.addErrors(1)
		log.Errorf("Tick failed: %v", err)
		metrics.Ticks.WithLabelValues("failed").Inc()
		return 0, err
	}

	metrics.Ticks.WithLabelValues("completed").Inc()
	log.WithFields(logrus.Fields{
		"inserted": inserted,
		"duration": time.Since(start).String(),
	}).Info("Tick completed")
	return inserted, nil
}

// scan fetches, filters, deduplicates and persists the mentions of one job
func (e *Engine) scan(ctx context.Context, job models.MonitoringJob) (int, error) {
	log := logrus.WithField("case_id", job.CaseID)

	candidates := e.fetchAll(ctx, job)
	log.Debugf("Collected %d candidate mentions", len(candidates))

	candidates = e.applyStage("keyword", job.CaseID, candidates, func(in []models.Mention) []models.Mention {
		return e.keywordFilter(in, search.ForKeywords(job.Keywords))
	})

	if job.Filters.HasLanguageRules() {
		candidates = e.applyStage("language", job.CaseID, candidates, func(in []models.Mention) []models.Mention {
			return e.languageFilter(in, job.Filters)
		})
	}

	candidates = e.dedupe(ctx, job.CaseID, candidates)
	if len(candidates) == 0 {
		log.Debug("No new mentions after deduplication")
		return 0, nil
	}

	analysis.Analyze(candidates)

	inserted, err := e.store.InsertMentions(ctx, job.CaseID, candidates)
	if err != nil {
		return 0, fmt.Errorf("persist mentions: %w", err)
	}

	e.addInserted(len(inserted))
	for _, m := range inserted {
		metrics.MentionsIngested.WithLabelValues(m.Platform).Inc()
	}

	if len(inserted) > 0 {
		e.raiseAlerts(ctx, job.CaseID, inserted)
		e.archiveBatch(ctx, job.CaseID, inserted)
	}

	return len(inserted), nil
}

type fetchResult struct {
	platform string
	mentions []models.Mention
	err      error
}

// fetchAll searches every platform of the job concurrently and waits for
// all of them. A failing platform is counted and logged; the others still
// contribute.
func (e *Engine) fetchAll(ctx context.Context, job models.MonitoringJob) []models.Mention {
	platforms := job.Platforms
	if len(platforms) == 0 {
		for _, src := range e.registry.Enabled() {
			platforms = append(platforms, src.Name())
		}
	}

	terms := search.SearchTerms(job.Keywords)
	results := make([]fetchResult, len(platforms))

	var wg sync.WaitGroup
	for i, platform := range platforms {
		src, ok := e.registry.Get(platform)
		if !ok {
			results[i] = fetchResult{platform: platform, err: fmt.Errorf("unknown platform %q", platform)}
			continue
		}
		if !src.IsEnabled() {
			logrus.WithFields(logrus.Fields{"case_id": job.CaseID, "platform": platform}).Debug("Source not configured, skipping")
			results[i] = fetchResult{platform: platform}
			continue
		}

		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = fetchResult{platform: src.Name(), err: fmt.Errorf("source panicked: %v", r)}
				}
			}()

			mentions, err := e.searchSource(ctx, src, terms, job.Filters)
			results[i] = fetchResult{platform: src.Name(), mentions: mentions, err: err}
		}(i, src)
	}
	wg.Wait()

	var all []models.Mention
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			logrus.WithFields(logrus.Fields{
				"case_id":  job.CaseID,
				"platform": r.platform,
				"error":    r.err.Error(),
			}).Warn("Source failed")
			continue
		}
		for _, m := range r.mentions {
			if m.Platform == "" {
				m.Platform = r.platform
			}
			all = append(all, m)
		}
	}
	e.addErrors(failed)

	return all
}

// applyStage runs a filter stage. A panicking stage is skipped and the
// mentions pass through unchanged.
func (e *Engine) applyStage(stage, caseID string, in []models.Mention, fn func([]models.Mention) []models.Mention) (out []models.Mention) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{"case_id": caseID, "stage": stage}).
				Warnf("Filter stage failed, passing mentions through: %v", r)
			out = in
		}
	}()

	out = fn(in)
	if dropped := len(in) - len(out); dropped > 0 {
		metrics.MentionsFiltered.WithLabelValues(stage).Add(float64(dropped))
	}
	return out
}

// dedupe drops mentions repeated within the batch and mentions already
// stored for the case. When the existence check fails the batch is kept
// whole and the store's unique key absorbs any repeat.
func (e *Engine) dedupe(ctx context.Context, caseID string, mentions []models.Mention) []models.Mention {
	if len(mentions) == 0 {
		return mentions
	}

	seen := make(map[models.MentionKey]bool, len(mentions))
	unique := make([]models.Mention, 0, len(mentions))
	keys := make([]models.MentionKey, 0, len(mentions))
	for _, m := range mentions {
		k := m.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, m)
		keys = append(keys, k)
	}

	existing, err := e.store.FindExistingExternalIDs(ctx, caseID, keys)
	if err != nil {
		metrics.DedupFallbacks.Inc()
		logrus.WithField("case_id", caseID).Warnf("Existence check failed, inserting without deduplication: %v", err)
		return unique
	}
	if len(existing) == 0 {
		return unique
	}

	stored := make(map[models.MentionKey]bool, len(existing))
	for _, k := range existing {
		stored[k] = true
	}

	fresh := unique[:0]
	for _, m := range unique {
		if !stored[m.Key()] {
			fresh = append(fresh, m)
		}
	}
	metrics.MentionsFiltered.WithLabelValues("dedup").Add(float64(len(unique) - len(fresh)))
	return fresh
}

func (e *Engine) raiseAlerts(ctx context.Context, caseID string, inserted []models.Mention) {
	alerts := analysis.AlertsFor(caseID, inserted, e.config.AlertUrgencyThreshold)
	if len(alerts) == 0 {
		return
	}

	log := logrus.WithFields(logrus.Fields{"case_id": caseID, "alerts": len(alerts)})

	if err := e.store.InsertAlerts(ctx, alerts); err != nil {
		log.Errorf("Failed to store alerts: %v", err)
	}
	for _, a := range alerts {
		metrics.AlertsRaised.WithLabelValues(a.Severity).Inc()
	}
	log.Warn("Critical mentions detected")

	if e.notifier != nil {
		if err := e.notifier.SendAlerts(ctx, caseID, alerts); err != nil {
			log.Errorf("Failed to deliver alerts: %v", err)
		}
	}
}

func (e *Engine) archiveBatch(ctx context.Context, caseID string, inserted []models.Mention) {
	if e.archive == nil {
		return
	}

	data, err := json.Marshal(inserted)
	if err != nil {
		logrus.WithField("case_id", caseID).Errorf("Failed to encode archive batch: %v", err)
		return
	}

	name := storage.ArchivePath(caseID, time.Now())
	if err := e.archive.Store(ctx, name, data); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithField("case_id", caseID).Errorf("Failed to archive mentions: %v", err)
	}
}
