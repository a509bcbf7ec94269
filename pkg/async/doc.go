// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement and context cancellation.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, logger, 30*time.Second, "event publish", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return sink.Publish(ctx, event)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 10, "event delivery", 30*time.Second, logger)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return deliver(ctx, event)
//	})
//
// # Use Cases
//
// Best-effort identity event publication, session revocation fan-out,
// maintenance jobs.
//
// # Related Packages
//
//   - pkg/events: Uses SafeGo for best-effort publication
package async
