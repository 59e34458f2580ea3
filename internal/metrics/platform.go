package metrics

import (
	"sort"
	"sync"
	"time"
)

// PlatformMetrics accumulates call statistics for one source. They are
// informational only and never drive engine decisions.
type PlatformMetrics struct {
	Platform        string    `json:"platform"`
	TotalCalls      int64     `json:"totalCalls"`
	SuccessfulCalls int64     `json:"successfulCalls"`
	FailedCalls     int64     `json:"failedCalls"`
	AvgResponseTime float64   `json:"avgResponseTime"` // milliseconds
	LastCallTime    time.Time `json:"lastCallTime"`
}

// Tracker holds PlatformMetrics for every source. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	platforms map[string]*PlatformMetrics
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{platforms: make(map[string]*PlatformMetrics)}
}

// Record adds one call to the platform's statistics
func (t *Tracker) Record(platform string, success bool, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pm, ok := t.platforms[platform]
	if !ok {
		pm = &PlatformMetrics{Platform: platform}
		t.platforms[platform] = pm
	}

	pm.TotalCalls++
	if success {
		pm.SuccessfulCalls++
	} else {
		pm.FailedCalls++
	}

	ms := float64(duration) / float64(time.Millisecond)
	pm.AvgResponseTime += (ms - pm.AvgResponseTime) / float64(pm.TotalCalls)
	pm.LastCallTime = time.Now()
}

// Get returns a copy of one platform's statistics
func (t *Tracker) Get(platform string) (PlatformMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pm, ok := t.platforms[platform]
	if !ok {
		return PlatformMetrics{Platform: platform}, false
	}
	return *pm, true
}

// Snapshot returns copies of all statistics ordered by platform
func (t *Tracker) Snapshot() []PlatformMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PlatformMetrics, 0, len(t.platforms))
	for _, pm := range t.platforms {
		out = append(out, *pm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
