package monitoring

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/socialguard/mentions-monitor/internal/metrics"
	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/resilience"
	"github.com/socialguard/mentions-monitor/internal/sources"
)

// sourceRuntime is the process-wide state of one source, shared by all jobs
type sourceRuntime struct {
	name           string
	breaker        *resilience.Breaker
	limiter        *rate.Limiter
	limitPerMinute int
}

// RateLimitStatus is the pacing state of one source
type RateLimitStatus struct {
	LimitPerMinute int     `json:"limitPerMinute"`
	Available      float64 `json:"available"`
}

func (e *Engine) runtimeFor(name string) *sourceRuntime {
	e.rtMu.Lock()
	defer e.rtMu.Unlock()

	if rt, ok := e.runtimes[name]; ok {
		return rt
	}

	perMinute := e.config.SourceRateLimit
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}

	rt := &sourceRuntime{
		name: name,
		breaker: resilience.NewBreaker(name, resilience.BreakerConfig{
			FailureThreshold: uint32(e.config.BreakerFailureThreshold),
			Timeout:          e.config.BreakerTimeout,
			ResetTimeout:     e.config.BreakerResetTimeout,
		}, metrics.RecordBreakerTransition),
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		limitPerMinute: perMinute,
	}
	e.runtimes[name] = rt
	return rt
}

// searchSource calls one source with pacing, the breaker and the retry loop:
// retry( limiter.Wait; breaker( search ) ).
func (e *Engine) searchSource(ctx context.Context, src sources.Source, terms []string, filters models.Filters) ([]models.Mention, error) {
	rt := e.runtimeFor(src.Name())

	classify := sources.IsRetryable
	if c, ok := src.(sources.RetryClassifier); ok {
		classify = c.IsRetryable
	}

	start := time.Now()
	attempt := 0
	mentions, err := resilience.Retry(ctx, e.retry, rt.name, classify, func(ctx context.Context) ([]models.Mention, error) {
		attempt++
		if attempt > 1 {
			metrics.SourceRetries.WithLabelValues(rt.name).Inc()
		}
		if err := rt.limiter.Wait(ctx); err != nil {
			return nil, resilience.Permanent(err)
		}
		return resilience.Execute(ctx, rt.breaker, func(ctx context.Context) ([]models.Mention, error) {
			return src.Search(ctx, terms, filters)
		})
	})
	elapsed := time.Since(start)

	e.tracker.Record(rt.name, err == nil, elapsed)
	switch {
	case err == nil:
		metrics.RecordSourceCall(rt.name, elapsed, "success")
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.RecordSourceCall(rt.name, elapsed, "rejected")
	default:
		metrics.RecordSourceCall(rt.name, elapsed, "failure")
	}

	return mentions, err
}

func (e *Engine) rateLimitBySource() map[string]RateLimitStatus {
	e.rtMu.Lock()
	defer e.rtMu.Unlock()

	out := make(map[string]RateLimitStatus, len(e.runtimes))
	for name, rt := range e.runtimes {
		out[name] = RateLimitStatus{
			LimitPerMinute: rt.limitPerMinute,
			Available:      rt.limiter.Tokens(),
		}
	}
	return out
}
