package monitoring

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// SyncResult summarises one case sync
type SyncResult struct {
	Started   int `json:"started"`
	Stopped   int `json:"stopped"`
	Unchanged int `json:"unchanged"`
	Invalid   int `json:"invalid"`
}

// SyncActiveCases reconciles the jobs with the active cases in the store:
// new or changed cases are (re)started, jobs whose case is no longer active
// are stopped. Records that cannot be decoded are skipped.
func (e *Engine) SyncActiveCases(ctx context.Context) (SyncResult, error) {
	var result SyncResult

	records, err := e.store.LoadActiveCases(ctx)
	if err != nil {
		return result, fmt.Errorf("load active cases: %w", err)
	}

	active := make(map[string]bool, len(records))
	for _, record := range records {
		job, err := record.ToJob(e.config.DefaultInterval)
		if err != nil {
			result.Invalid++
			logrus.WithField("case_id", record.ID).Warnf("Skipping case: %v", err)
			continue
		}
		active[job.CaseID] = true

		if current, ok := e.currentJob(job.CaseID); ok && sameDefinition(current, job) {
			result.Unchanged++
			continue
		}

		if err := e.StartMonitoringJob(job); err != nil {
			result.Invalid++
			logrus.WithField("case_id", job.CaseID).Errorf("Failed to start monitoring job: %v", err)
			continue
		}
		result.Started++
	}

	for _, job := range e.GetActiveJobs() {
		if !active[job.CaseID] {
			e.StopMonitoringJob(job.CaseID)
			result.Stopped++
		}
	}

	logrus.WithFields(logrus.Fields{
		"started":   result.Started,
		"stopped":   result.Stopped,
		"unchanged": result.Unchanged,
		"invalid":   result.Invalid,
	}).Info("Active cases synced")

	return result, nil
}

func (e *Engine) currentJob(caseID string) (models.MonitoringJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[caseID]
	if !ok {
		return models.MonitoringJob{}, false
	}
	return *job, true
}

func sameDefinition(a, b models.MonitoringJob) bool {
	return a.Interval == b.Interval &&
		reflect.DeepEqual(a.Keywords, b.Keywords) &&
		reflect.DeepEqual(a.Platforms, b.Platforms) &&
		reflect.DeepEqual(a.Filters, b.Filters)
}
