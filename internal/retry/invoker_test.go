package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper records requested waits without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func (s *recordingSleeper) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

// failingOp fails the first n calls and then returns "ok".
func failingOp(n int, calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= n {
			return "", fmt.Errorf("model timeout #%d", *calls)
		}
		return "ok", nil
	}
}

func TestCallSucceedsAfterKFailuresWithExpectedWait(t *testing.T) {
	policy := DefaultPolicy().WithMaxRetries(5).WithBaseDelay(100 * time.Millisecond).WithMaxDelay(time.Second)

	for k := 0; k <= policy.MaxRetries; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			sleeper := &recordingSleeper{}
			inv := NewInvoker(WithSleeper(sleeper))
			calls := 0

			got, err := Call(context.Background(), inv, "classifyIntent", policy, failingOp(k, &calls))

			require.NoError(t, err)
			assert.Equal(t, "ok", got)
			assert.Equal(t, k+1, calls)

			var want time.Duration
			for i := 0; i < k; i++ {
				want += policy.Backoff(i)
			}
			assert.Equal(t, want, sleeper.total())
		})
	}
}

func TestCallExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	sleeper := &recordingSleeper{}
	inv := NewInvoker(WithSleeper(sleeper))
	calls := 0
	policy := DefaultPolicy()

	_, err := Call(context.Background(), inv, "parseOffer", policy, failingOp(100, &calls))

	require.Error(t, err)
	assert.Equal(t, policy.MaxRetries+1, calls)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))

	var exhausted *RetriesExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "parseOffer", exhausted.Operation)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.EqualError(t, exhausted.Err, "model timeout #4")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestRunPropagatesUnderlyingErrorIdentity(t *testing.T) {
	sentinel := errors.New("rate limited")
	inv := NewInvoker(WithSleeper(&recordingSleeper{}))

	err := inv.Run(context.Background(), "op", DefaultPolicy().WithMaxRetries(1), func(context.Context) error {
		return sentinel
	})

	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
}

func TestRunZeroRetriesMakesSingleAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	inv := NewInvoker(WithSleeper(sleeper))
	calls := 0

	err := inv.Run(context.Background(), "op", DefaultPolicy().WithMaxRetries(0), func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
}

func TestRunRejectsInvalidPolicyWithoutCalling(t *testing.T) {
	inv := NewInvoker(WithSleeper(&recordingSleeper{}))
	called := false

	err := inv.Run(context.Background(), "op", DefaultPolicy().WithMaxRetries(-2), func(context.Context) error {
		called = true
		return nil
	})

	assert.True(t, errors.Is(err, ErrInvalidPolicy))
	assert.False(t, called)
}

func TestRunRejectsNilOperation(t *testing.T) {
	err := NewInvoker().Run(context.Background(), "op", DefaultPolicy(), nil)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))

	_, err = Call[int](context.Background(), nil, "op", DefaultPolicy(), nil)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestOnRetryReceivesAttemptAndError(t *testing.T) {
	type observed struct {
		attempt int
		msg     string
	}
	var seen []observed
	policy := DefaultPolicy().WithOnRetry(func(attempt int, err error) {
		seen = append(seen, observed{attempt, err.Error()})
	})
	inv := NewInvoker(WithSleeper(&recordingSleeper{}))
	calls := 0

	_, err := Call(context.Background(), inv, "op", policy, failingOp(2, &calls))

	require.NoError(t, err)
	assert.Equal(t, []observed{{1, "model timeout #1"}, {2, "model timeout #2"}}, seen)
}

func TestOnRetryPanicDoesNotAlterControlFlow(t *testing.T) {
	policy := DefaultPolicy().WithOnRetry(func(int, error) { panic("observer bug") })
	inv := NewInvoker(WithSleeper(&recordingSleeper{}))
	calls := 0

	got, err := Call(context.Background(), inv, "op", policy, failingOp(1, &calls))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestJitterIsAddedToBackoff(t *testing.T) {
	sleeper := &recordingSleeper{}
	var limits []time.Duration
	inv := NewInvoker(
		WithSleeper(sleeper),
		WithJitterSource(func(limit time.Duration) time.Duration {
			limits = append(limits, limit)
			return 7 * time.Millisecond
		}),
	)
	policy := DefaultPolicy().WithBaseDelay(100 * time.Millisecond).WithJitter(true)
	calls := 0

	_, err := Call(context.Background(), inv, "op", policy, failingOp(2, &calls))

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{107 * time.Millisecond, 207 * time.Millisecond}, sleeper.delays)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, limits)
}

func TestRandomJitterStaysInRange(t *testing.T) {
	assert.Equal(t, time.Duration(0), randomJitter(0))
	for i := 0; i < 200; i++ {
		j := randomJitter(500 * time.Millisecond)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 500*time.Millisecond)
	}
}

func TestCancelledContextAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := NewInvoker()
	calls := 0

	_, err := Call(ctx, inv, "op", DefaultPolicy().WithBaseDelay(time.Hour).WithMaxDelay(time.Hour), failingOp(100, &calls))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
}

func TestAttemptTimeoutBoundsEachAttempt(t *testing.T) {
	inv := NewInvoker(WithSleeper(&recordingSleeper{}))
	policy := DefaultPolicy().WithMaxRetries(1).WithAttemptTimeout(10 * time.Millisecond)
	calls := 0

	err := inv.Run(context.Background(), "op", policy, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBackoffOnlySuspendsCallingGoroutine(t *testing.T) {
	inv := NewInvoker()
	slowPolicy := DefaultPolicy().WithMaxRetries(1).WithBaseDelay(300 * time.Millisecond).WithMaxDelay(300 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = inv.Run(context.Background(), "slow", slowPolicy, func(context.Context) error {
			return errors.New("always failing")
		})
	}()

	start := time.Now()
	for i := 0; i < 5; i++ {
		err := inv.Run(context.Background(), "fast", DefaultPolicy(), func(context.Context) error { return nil })
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	wg.Wait()
}
