package retry

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// ErrInvalidPolicy is returned without invoking the operation when a Policy
// cannot be executed.
var ErrInvalidPolicy = errors.New("retry: invalid policy")

// Policy configures a single retried call. Attempts are numbered from 0 and at
// most MaxRetries+1 attempts are made.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter adds a random [0, BaseDelay/2) on top of each backoff delay.
	Jitter bool
	// AttemptTimeout bounds each individual attempt when positive.
	AttemptTimeout time.Duration
	// OnRetry is called before each wait with the upcoming attempt number and
	// the error that triggered it. It cannot influence the retry sequence.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns 3 retries, 1s base delay and a 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

func (p Policy) WithMaxRetries(n int) Policy {
	p.MaxRetries = n
	return p
}

func (p Policy) WithBaseDelay(d time.Duration) Policy {
	p.BaseDelay = d
	return p
}

func (p Policy) WithMaxDelay(d time.Duration) Policy {
	p.MaxDelay = d
	return p
}

func (p Policy) WithJitter(enabled bool) Policy {
	p.Jitter = enabled
	return p
}

func (p Policy) WithAttemptTimeout(d time.Duration) Policy {
	p.AttemptTimeout = d
	return p
}

func (p Policy) WithOnRetry(fn func(attempt int, err error)) Policy {
	p.OnRetry = fn
	return p
}

// Validate reports policies that would misbehave rather than degrade.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: max retries %d is negative", ErrInvalidPolicy, p.MaxRetries)
	case p.BaseDelay < 0:
		return fmt.Errorf("%w: base delay %s is negative", ErrInvalidPolicy, p.BaseDelay)
	case p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: max delay %s is below base delay %s", ErrInvalidPolicy, p.MaxDelay, p.BaseDelay)
	case p.AttemptTimeout < 0:
		return fmt.Errorf("%w: attempt timeout %s is negative", ErrInvalidPolicy, p.AttemptTimeout)
	}
	return nil
}

// Backoff returns min(BaseDelay * 2^attempt, MaxDelay), saturating on overflow.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt >= 62 {
		return p.MaxDelay
	}
	delay := p.BaseDelay << uint(attempt)
	if delay <= 0 || delay>>uint(attempt) != p.BaseDelay || delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
