package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Case statuses
const (
	CaseStatusActive   = "active"
	CaseStatusPaused   = "paused"
	CaseStatusArchived = "archived"
)

// CaseRecord is a case row as persisted. Keywords, platforms and filters are
// JSON-encoded text columns.
type CaseRecord struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Keywords        string    `json:"keywords"`
	Platforms       string    `json:"platforms"`
	Filters         string    `json:"filters,omitempty"`
	Status          string    `json:"status"`
	IntervalMinutes int       `json:"interval_minutes"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ToJob decodes the record into a monitoring job. A non-positive interval on
// the record falls back to defaultInterval.
func (c CaseRecord) ToJob(defaultInterval time.Duration) (MonitoringJob, error) {
	job := MonitoringJob{
		CaseID:   c.ID,
		Interval: defaultInterval,
	}
	if c.IntervalMinutes > 0 {
		job.Interval = time.Duration(c.IntervalMinutes) * time.Minute
	}

	if err := decodeColumn(c.Keywords, &job.Keywords); err != nil {
		return job, fmt.Errorf("case %s: invalid keywords: %w", c.ID, err)
	}
	if err := decodeColumn(c.Platforms, &job.Platforms); err != nil {
		return job, fmt.Errorf("case %s: invalid platforms: %w", c.ID, err)
	}
	if err := decodeColumn(c.Filters, &job.Filters); err != nil {
		return job, fmt.Errorf("case %s: invalid filters: %w", c.ID, err)
	}

	return job, nil
}

// NewCaseRecord encodes a job back into its persisted form
func NewCaseRecord(name string, job MonitoringJob) (CaseRecord, error) {
	keywords, err := json.Marshal(nonNil(job.Keywords))
	if err != nil {
		return CaseRecord{}, err
	}
	platforms, err := json.Marshal(nonNil(job.Platforms))
	if err != nil {
		return CaseRecord{}, err
	}
	filters, err := json.Marshal(job.Filters)
	if err != nil {
		return CaseRecord{}, err
	}

	return CaseRecord{
		ID:              job.CaseID,
		Name:            name,
		Keywords:        string(keywords),
		Platforms:       string(platforms),
		Filters:         string(filters),
		Status:          CaseStatusActive,
		IntervalMinutes: int(job.Interval / time.Minute),
	}, nil
}

func decodeColumn(raw string, dst interface{}) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
