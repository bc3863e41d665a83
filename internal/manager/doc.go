// Package manager owns the pipeline pool: it creates, shares, rate-limits
// and retires pipelines per installed pair, and is the entry point the HTTP
// layer calls into. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor helpers, routing snapshot.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - pool.go: per-pair heaps, GetPipeline and Sweep.
//   - translate.go: pair resolution, Translate, TranslateChain and RunMode.
//   - errors.go: error types and predicates (IsNotInstalled, ...).
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors for the pool.
//   - status_report.go: Status for /stats.
//   - close.go: shutdown.
//
// Pool metadata is guarded by one mutex that is never held across process
// I/O; each pipeline serializes its own exchanges.
package manager
