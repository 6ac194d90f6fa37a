package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/librarymaster/librarymaster/internal/liberr"
)

// Config tunes retry and breaker behavior.
type Config struct {
	MaxRetries       int           // retry attempts per mirror beyond the first call
	RetryDelay       time.Duration // initial backoff delay
	MaxDelay         time.Duration // backoff cap
	BreakerThreshold int           // consecutive failures before a circuit opens
	BreakerCooldown  time.Duration // open -> half_open delay
	RequestTimeout   time.Duration // per-attempt timeout (0 = caller's deadline only)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		RetryDelay:       500 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		RequestTimeout:   30 * time.Second,
	}
}

// Executor walks an ecosystem's ordered mirror list, skipping mirrors with
// an open circuit and retrying transient failures with exponential backoff
// and jitter before failing over to the next mirror.
type Executor struct {
	config   Config
	breakers *BreakerSet
	logger   *slog.Logger

	mu      sync.RWMutex
	mirrors map[string][]string
}

// NewExecutor creates an executor with its own breaker set.
func NewExecutor(config Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		config:   config,
		breakers: NewBreakerSet(config.BreakerThreshold, config.BreakerCooldown),
		logger:   logger,
		mirrors:  make(map[string][]string),
	}
}

// RegisterMirrors sets the ordered endpoint list for an ecosystem. The
// first entry is the primary. Called once per ecosystem at worker
// registration; a later call replaces the list.
func (e *Executor) RegisterMirrors(ecosystem string, urls []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mirrors[ecosystem] = append([]string(nil), urls...)
}

// Mirrors returns the configured endpoint list for an ecosystem.
func (e *Executor) Mirrors(ecosystem string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mirrors[ecosystem]
}

// Breakers exposes the breaker set for health reporting.
func (e *Executor) Breakers() *BreakerSet { return e.breakers }

// Do runs fn against the first usable mirror. Non-transient errors (404,
// validation) propagate immediately without retry or failover; transient
// errors are retried on the same mirror, then the next mirror is tried.
// When every circuit is open, Do fails fast with no network attempt.
func (e *Executor) Do(ctx context.Context, ecosystem string, fn func(ctx context.Context, baseURL string) error) error {
	endpoints := e.Mirrors(ecosystem)
	if len(endpoints) == 0 {
		return fmt.Errorf("no mirrors registered for %s: %w", ecosystem, liberr.ErrUpstreamUnavailable)
	}

	var lastErr error
	attempted := false

	for _, url := range endpoints {
		br := e.breakers.Get(ecosystem, url)
		ok, trial := br.Allow()
		if !ok {
			continue
		}
		attempted = true

		err := e.callMirror(ctx, url, fn, br, trial)
		if err == nil {
			return nil
		}
		lastErr = err

		if !liberr.IsTransient(err) {
			// The mirror answered; the failure belongs to the request,
			// not the endpoint.
			return err
		}
		if ctx.Err() != nil {
			break
		}
		e.logger.Warn("mirror exhausted, failing over",
			"ecosystem", ecosystem, "mirror", url, "error", err)
	}

	if !attempted {
		return fmt.Errorf("all mirrors open for %s: %w", ecosystem, liberr.ErrUpstreamUnavailable)
	}
	return fmt.Errorf("mirrors exhausted for %s: %w (last: %v)", ecosystem, liberr.ErrUpstreamUnavailable, lastErr)
}

// callMirror runs fn with retries against a single mirror, recording each
// outcome on the breaker. A half-open trial gets exactly one attempt.
func (e *Executor) callMirror(ctx context.Context, url string, fn func(ctx context.Context, baseURL string) error, br *Breaker, trial bool) error {
	attempts := e.config.MaxRetries + 1
	if trial {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.config.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.config.RequestTimeout)
		}
		err := fn(attemptCtx, url)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			br.Success()
			return nil
		}
		lastErr = err

		if !liberr.IsTransient(err) {
			// The endpoint is healthy enough to answer authoritatively.
			br.Success()
			return err
		}

		br.Failure()
		if ctx.Err() != nil {
			return lastErr
		}
		if br.State() == StateOpen {
			// No point burning the remaining retries on an open circuit.
			return lastErr
		}
	}
	return lastErr
}

// backoff returns the delay before the given attempt: exponential growth
// capped at MaxDelay, with half-width jitter so synchronized callers
// spread out.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.config.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if e.config.MaxDelay > 0 && delay > e.config.MaxDelay {
			delay = e.config.MaxDelay
			break
		}
	}
	half := delay / 2
	return half + rand.N(half+1)
}
