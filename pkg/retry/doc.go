// Package retry provides configurable retry mechanisms with exponential backoff.
//
// This package handles transient failures by automatically retrying operations
// with configurable delays, backoff strategies, and jitter to prevent thundering
// herd problems.
//
// # Configuration
//
// Create a Retrier with custom retry policy:
//
//	config := retry.RetryConfig{
//	    MaxAttempts:       5,
//	    InitialDelay:      100 * time.Millisecond,
//	    MaxDelay:          30 * time.Second,
//	    BackoffMultiplier: 2.0,
//	    JitterMaxPercent:  25,
//	}
//	retrier := retry.NewRetrier(config)
//
// # Executing with Retry
//
// Wrap operations with automatic retry on failure:
//
//	err := retrier.Execute(ctx, func(ctx context.Context) error {
//	    return callUnreliableService(ctx)
//	})
//
// ExecuteWithResult accepts an operation that returns a value, but it
// returns only the final error; the value is discarded:
//
//	err := retrier.ExecuteWithResult(ctx, func(ctx context.Context) (interface{}, error) {
//	    return fetchData(ctx)
//	})
//
// # Backoff Strategy
//
// Delays increase exponentially between retries:
//
//	Attempt 1: InitialDelay (100ms)
//	Attempt 2: InitialDelay * BackoffMultiplier (200ms)
//	Attempt 3: Previous * BackoffMultiplier (400ms)
//	...up to MaxDelay
//
// Jitter is applied to prevent synchronized retries across clients.
//
// # Pre-configured Policies
//
//	// Default: 3 attempts, 100ms initial delay
//	retrier := retry.NewRetrier(retry.DefaultRetryConfig())
//
//	// File system: 3 attempts, 50ms initial, 5s max, tuned for the
//	// snapshot-persistence path pkg/integration wraps
//	retrier := retry.NewRetrier(retry.FileSystemRetryConfig())
//
// # Retryable Errors
//
// By default, all errors trigger retry. Wrap an error with Permanent when
// retrying it can never succeed, such as a snapshot that fails to marshal:
//
//	if _, err := yaml.Marshal(v); err != nil {
//	    return retry.Permanent(fmt.Errorf("marshal yaml: %w", err))
//	}
//
// # Context Support
//
// Retries respect context cancellation and deadlines:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	err := retrier.Execute(ctx, operation)
//
// # Logging
//
// Retry attempts are logged with structured context including attempt number,
// delay duration, and error details for debugging transient failures.
package retry
