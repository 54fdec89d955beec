package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wolfman30/vendor-negotiation/internal/observability/metrics"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// ErrRetriesExhausted matches every *RetriesExhaustedError via errors.Is.
var ErrRetriesExhausted = errors.New("retry: retries exhausted")

// RetriesExhaustedError carries the last underlying failure of a retried call.
type RetriesExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
	// Aborted is the context error when the caller gave up during a backoff wait.
	Aborted error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Aborted != nil {
		return fmt.Sprintf("retry: %s aborted after %d attempts: %v (last error: %v)", e.Operation, e.Attempts, e.Aborted, e.Err)
	}
	return fmt.Sprintf("retry: %s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	errs := []error{ErrRetriesExhausted}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Aborted != nil {
		errs = append(errs, e.Aborted)
	}
	return errs
}

// Sleeper suspends the calling goroutine. Implementations must return early
// with ctx.Err() when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Invoker runs fallible operations with exponential backoff. It holds no
// per-call state and is safe for concurrent use.
type Invoker struct {
	sleeper Sleeper
	jitter  func(limit time.Duration) time.Duration
	logger  *logging.Logger
	metrics *metrics.ResilienceMetrics
}

type Option func(*Invoker)

// WithSleeper replaces the timer-backed wait, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(i *Invoker) {
		if s != nil {
			i.sleeper = s
		}
	}
}

// WithJitterSource overrides the random jitter generator. fn receives the
// exclusive upper bound.
func WithJitterSource(fn func(limit time.Duration) time.Duration) Option {
	return func(i *Invoker) {
		if fn != nil {
			i.jitter = fn
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func WithMetrics(m *metrics.ResilienceMetrics) Option {
	return func(i *Invoker) {
		i.metrics = m
	}
}

func NewInvoker(opts ...Option) *Invoker {
	inv := &Invoker{
		sleeper: timerSleeper{},
		jitter:  randomJitter,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

// Run executes fn until it succeeds or policy.MaxRetries retries have failed.
// ctx is forwarded to fn and only consulted between attempts.
func (i *Invoker) Run(ctx context.Context, operation string, policy Policy, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("%w: nil operation %q", ErrInvalidPolicy, operation)
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 0; ; attempt++ {
		err := i.attempt(ctx, policy, fn)
		if err == nil {
			if attempt > 0 {
				i.logger.Info("retry succeeded", "operation", operation, "attempts", attempt+1)
			}
			return nil
		}

		if attempt >= policy.MaxRetries {
			i.metrics.ObserveExhausted(operation)
			i.logger.Warn("retries exhausted",
				"operation", operation,
				"attempts", attempt+1,
				"error", err.Error(),
			)
			return &RetriesExhaustedError{Operation: operation, Attempts: attempt + 1, Err: err}
		}

		delay := policy.Backoff(attempt)
		if policy.Jitter {
			delay += i.jitter(policy.BaseDelay / 2)
		}
		i.notify(operation, policy.OnRetry, attempt+1, err)
		i.metrics.ObserveRetry(operation)
		i.logger.Warn("attempt failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		if waitErr := i.sleeper.Sleep(ctx, delay); waitErr != nil {
			return &RetriesExhaustedError{Operation: operation, Attempts: attempt + 1, Err: err, Aborted: waitErr}
		}
	}
}

func (i *Invoker) attempt(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	if policy.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func (i *Invoker) notify(operation string, hook func(int, error), attempt int, err error) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("retry observer panicked", "operation", operation, "attempt", attempt, "panic", fmt.Sprint(r))
		}
	}()
	hook(attempt, err)
}

// Call is Run for operations that produce a value. The zero value is returned
// alongside any error.
func Call[T any](ctx context.Context, inv *Invoker, operation string, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, fmt.Errorf("%w: nil operation %q", ErrInvalidPolicy, operation)
	}
	if inv == nil {
		inv = NewInvoker()
	}
	var out T
	err := inv.Run(ctx, operation, policy, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}
