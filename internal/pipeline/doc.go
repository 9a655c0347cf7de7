// Package pipeline runs a scraping session.
//
// An Orchestrator schedules source collectors under a concurrency limit,
// retries failed sources with a fixed delay, and hands every collected
// record to a Pipeline of post-collection steps: validation, scoring,
// deduplication, threshold filtering, ranking and capping. The outcome is a
// model.ScrapingReport plus the ranked opportunities.
//
// Design decision: collector goroutines never touch the session aggregate.
// They send events over a channel and a single coordinator loop applies
// them, so the per-source state machine and the record buffers need no locks.
package pipeline
