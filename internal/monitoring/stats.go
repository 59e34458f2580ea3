package monitoring

import (
	"time"

	"github.com/socialguard/mentions-monitor/internal/metrics"
)

// Stats is the aggregate view of the engine
type Stats struct {
	TotalMentions     int64                      `json:"totalMentions"`
	NewMentions       int64                      `json:"newMentions"`
	ErrorsCount       int64                      `json:"errorsCount"`
	SkippedTicks      int64                      `json:"skippedTicks"`
	ActiveJobs        int                        `json:"activeJobs"`
	LastRun           time.Time                  `json:"lastRun"`
	NextRun           time.Time                  `json:"nextRun"`
	RateLimitBySource map[string]RateLimitStatus `json:"rateLimitBySource"`
	Platforms         []metrics.PlatformMetrics  `json:"platforms"`
}

// GetStats returns the engine counters. NextRun is the earliest scheduled
// tick across all jobs.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	stats := Stats{
		TotalMentions: e.stats.totalMentions,
		NewMentions:   e.stats.newMentions,
		ErrorsCount:   e.stats.errorsCount,
		SkippedTicks:  e.stats.skippedTicks,
		ActiveJobs:    len(e.jobs),
		LastRun:       e.stats.lastRun,
	}
	caseIDs := make([]string, 0, len(e.jobs))
	for id := range e.jobs {
		caseIDs = append(caseIDs, id)
	}
	e.mu.Unlock()

	for _, id := range caseIDs {
		next, ok := e.scheduler.NextRun(id)
		if !ok || next.IsZero() {
			continue
		}
		if stats.NextRun.IsZero() || next.Before(stats.NextRun) {
			stats.NextRun = next
		}
	}

	stats.RateLimitBySource = e.rateLimitBySource()
	stats.Platforms = e.tracker.Snapshot()
	return stats
}

func (e *Engine) addErrors(n int) {
	if n == 0 {
		return
	}
	e.mu.Lock()
	e.stats.errorsCount += int64(n)
	e.mu.Unlock()
}

func (e *Engine) addInserted(n int) {
	e.mu.Lock()
	e.stats.totalMentions += int64(n)
	e.stats.newMentions += int64(n)
	e.mu.Unlock()
}
