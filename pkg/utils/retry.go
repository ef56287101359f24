package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// GetBackingStoreRetryOptions returns retry options for spreadsheet API calls.
// The sheets API rate limits aggressively, so intervals start high.
func GetBackingStoreRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  60 * time.Second,
		InitialInterval: 2 * time.Second,
		MaxInterval:     15 * time.Second,
		MaxRetries:      4,
	}
}

// GetGatewayRetryOptions returns retry options for messaging gateway calls.
func GetGatewayRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxRetries:      3,
	}
}

// WithRetry executes the given operation with exponential backoff using provided options.
func WithRetry(ctx context.Context, operation func() error, opts RetryOptions) error {
	// Configure exponential backoff
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// WithRetryResult executes an operation returning a value with exponential backoff.
func WithRetryResult[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	var result T

	backoffOperation := func() error {
		var err error
		result, err = operation()
		return err
	}

	err := WithRetry(ctx, backoffOperation, opts)
	return result, err
}

// Permanent marks an error as non-retryable so WithRetry stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
