package helper

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff. Callers
// compose it around external calls; permanent failures (validation,
// malformed input) are abandoned immediately.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Base        float64 // multiplier applied to the delay after each attempt
}

// DefaultRetryPolicy returns the policy used for generative-service calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Base:        2.0,
	}
}

// Do runs fn until it succeeds, returns a permanent error, or the attempt
// budget is exhausted. The final error is returned unchanged so callers
// can still inspect its kind.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.Delay
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Base)
	}
	return err
}

func retryable(err error) bool {
	if Transient(err) {
		return true
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return false
	}
	if strings.Contains(err.Error(), "(permanent)") {
		return false
	}
	return true
}
