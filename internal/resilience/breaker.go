// Package resilience guards calls to external sources with a per-source
// circuit breaker and a bounded exponential-backoff retry loop.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/sirupsen/logrus"
)

// Breaker states as reported to callers
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

var (
	// ErrCircuitOpen is returned without calling the operation while the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is OPEN")
	// ErrTimeout is returned when the operation exceeds the breaker timeout
	ErrTimeout = errors.New("operation timed out")
)

// BreakerConfig holds the tunables of a circuit breaker
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before OPEN
	Timeout          time.Duration // hard limit for a single operation
	ResetTimeout     time.Duration // time spent OPEN before a HALF_OPEN trial
}

// DefaultBreakerConfig returns failureThreshold=3, timeout=15s, resetTimeout=60s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		Timeout:          15 * time.Second,
		ResetTimeout:     60 * time.Second,
	}
}

// BreakerStatus is a point-in-time view of a breaker
type BreakerStatus struct {
	State           string    `json:"state"`
	FailureCount    uint32    `json:"failureCount"`
	LastFailureTime time.Time `json:"lastFailureTime,omitempty"`
}

// StateChangeFunc is notified on every breaker transition
type StateChangeFunc func(name, from, to string)

// Breaker guards a single upstream. One instance is shared by every job
// calling the same source.
type Breaker struct {
	name   string
	config BreakerConfig
	cb     *gobreaker.CircuitBreaker[any]

	mu          sync.Mutex
	lastFailure time.Time
}

// NewBreaker creates a breaker for the named source
func NewBreaker(name string, cfg BreakerConfig, onChange StateChangeFunc) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}

	b := &Breaker{name: name, config: cfg}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one trial call while half-open
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// shutdown of the caller is not the upstream's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"source": name,
				"from":   stateName(from),
				"to":     stateName(to),
			}).Warn("Circuit breaker state transition")
			// lastFailure marks the start of the current OPEN window
			b.mu.Lock()
			switch to {
			case gobreaker.StateOpen:
				b.lastFailure = time.Now()
			case gobreaker.StateClosed:
				b.lastFailure = time.Time{}
			}
			b.mu.Unlock()
			if onChange != nil {
				onChange(name, stateName(from), stateName(to))
			}
		},
	})

	return b
}

// Name returns the source the breaker guards
func (b *Breaker) Name() string {
	return b.name
}

// State returns CLOSED, OPEN or HALF_OPEN
func (b *Breaker) State() string {
	return stateName(b.cb.State())
}

// Status returns the state with its failure bookkeeping
func (b *Breaker) Status() BreakerStatus {
	// gobreaker invokes OnStateChange under its own lock, so never hold b.mu
	// while calling into cb.
	state := stateName(b.cb.State())
	failures := b.cb.Counts().ConsecutiveFailures

	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerStatus{
		State:           state,
		FailureCount:    failures,
		LastFailureTime: b.lastFailure,
	}
}

// Execute runs op through the breaker with a hard timeout. The timeout holds
// even if op ignores its context.
func Execute[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := b.cb.Execute(func() (any, error) {
		return b.runWithTimeout(ctx, func(ctx context.Context) (any, error) {
			return op(ctx)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, Permanent(fmt.Errorf("%s: %w", b.name, ErrCircuitOpen))
		}
		return zero, err
	}

	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("circuit breaker %s: unexpected result type %T", b.name, result)
	}
	return typed, nil
}

type outcome struct {
	value any
	err   error
}

func (b *Breaker) runWithTimeout(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		v, err := op(ctx)
		done <- outcome{value: v, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.err = fmt.Errorf("%s after %v: %w", b.name, b.config.Timeout, ErrTimeout)
		} else {
			res.err = ctx.Err()
		}
	}

	return res.value, res.err
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
