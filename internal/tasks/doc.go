// Package tasks runs the sync processor: the single authority that drains the mutation queue and
// pulls remote deltas.
//
// # Runs
//
// A run goes through these phases:
//
//  1. Connectivity check. An unreachable server ends the run as offline without touching the queue.
//  2. Enrichment (optional). Temporary movies are resolved to canonical keys and remapped before
//     anything that references them is pushed.
//  3. Drain. Entries are pushed one at a time in sequence order:
//     - success removes the entry
//     - a transient failure schedules a retry and halts the drain
//     - a permanent rejection is logged, removed, and the drain continues
//     - a conflict applies the server's record, is logged, removed, and the drain continues
//  4. Pull. The delta since last_sync is fetched and merged in one transaction, which also
//     advances last_sync.
//
// # Single Writer
//
// [Processor.RunOnce] and [Processor.ForceSync] coalesce through a [singleflight.Group]: a caller
// arriving during a run receives that run's result. A run executes on a context detached from the
// caller, so it cannot be abandoned halfway; the caller may stop waiting.
//
// # Progress Reporting
//
// Runs publish a [models.SyncStatus] when they start and when they finish. A [ProgressUpdate]
// channel can be supplied for finer grained reporting; sends never block.
package tasks
