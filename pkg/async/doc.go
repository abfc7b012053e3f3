// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 5*time.Second, "search analytics", func(ctx context.Context) error {
//		return analytics.RecordSearchEvent(ctx, event)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 10, "index updates", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return indexer.UpdateIndex(ctx, nodeID)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, nodeIDs, 5, "reindex", time.Minute,
//		func(ctx context.Context, id string) error {
//			return indexer.UpdateIndex(ctx, id)
//		})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Analytics recording, batch reindexing, cache invalidation
//
// # Related Packages
//
//   - pkg/search: Uses SafeGo for analytics and Batch for reindexing
package async
