// Package integration combines circuit breaker and retry patterns for
// fault-tolerant Store Gateway writes in the tactics session server.
//
// This package provides ResilientExecutor which layers retry logic on top of
// circuit breaker protection, giving operations the benefits of both mechanisms:
// automatic retries for transient failures and fast-fail for persistent outages.
//
// # Execution Flow
//
// When executing an operation:
//
//  1. Retry runs the attempt loop around the circuit breaker
//  2. Each attempt asks the circuit breaker whether to proceed; if the
//     circuit is open, that attempt fails with ErrCircuitBreakerOpen without
//     running the operation
//  3. Otherwise the operation runs and the circuit breaker records its
//     success or failure, so every attempt counts toward the breaker state
//  4. A failed attempt, including one rejected by an open circuit, is retried
//     with exponential backoff until MaxAttempts is reached or the error is
//     wrapped with retry.Permanent
//
// # Creating Executors
//
// Create a custom executor with specific configuration:
//
//	cbConfig := resilience.CircuitBreakerConfig{
//	    MaxFailures: 5,
//	    Timeout:     30 * time.Second,
//	}
//	retryConfig := retry.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 100 * time.Millisecond,
//	}
//	executor := integration.NewResilientExecutor(cbConfig, retryConfig)
//
// # Snapshot Persistence
//
// The package-level SnapshotExecutor guards every snapshot write the Store
// Gateway performs:
//
//	err := integration.ExecuteStoreOperation(ctx, func(ctx context.Context) error {
//	    return store.PutSnapshot(ctx, snap)
//	})
//
// # Disabling Mechanisms
//
// Run with only one protection mechanism:
//
//	// Circuit breaker only, no retry
//	executor := integration.WithRetryDisabled(cbConfig)
//
//	// Retry only, no circuit breaker
//	executor := integration.WithCircuitBreakerDisabled(retryConfig)
//
// # Statistics
//
// Query the circuit breaker's statistics:
//
//	stats := executor.GetStats()
//	// Contains circuit breaker state under circuit_breaker_* keys;
//	// no retry metrics are included
package integration
