// Package main hosts the title service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and request endpoints. A submitted URL is
//     validated, persisted as a PENDING record under a fresh processing id, and enqueued for asynchronous
//     work; the id is returned immediately so callers can poll for the outcome.
//   - Dispatcher & queue: tasks flow through either a bounded in-memory queue or a Pub/Sub topic and are
//     fanned out to a fixed worker pool sized by config.Worker.Concurrency. Delivery is at-least-once;
//     workers skip records that already reached a terminal state so duplicate deliveries are harmless.
//   - Fetch pipeline: workers perform a single bounded HTTP GET via the Colly-based fetcher, extract the
//     page title from the raw markup, and archive the full payload to the configured BlobStore
//     (memory/GCS). Each record then receives exactly one terminal update: PROCESSED with title and blob
//     locator on success, FAILED otherwise.
//   - Persistence: records live in Postgres (or an in-memory store for development and tests). The schema
//     and blob bucket are provisioned once at startup.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool. Shutdown is coordinated via context
//     cancellation propagated from main through the dispatcher to workers.
//   - Failure handling: there is no internal retry loop. A failed fetch, extraction, or archive marks the
//     record FAILED; redelivery semantics belong to the transport.
//   - Observability: zap logs carry request ids at key transitions; Prometheus counters/histograms track
//     API activity and job outcomes.
//
// Quick checklist:
//   - Configure env vars: TITLESVC_SERVER_PORT, TITLESVC_WORKER_CONCURRENCY, TITLESVC_FETCH_TIMEOUT_SECONDS,
//     storage (TITLESVC_STORAGE_*), db (TITLESVC_DB_*), and pubsub (TITLESVC_PUBSUB_*) when dispatch beyond
//     the in-memory queue is required.
//   - Run locally: go run ./cmd/titlesvc -config config.yaml (or rely solely on env overrides). The memory
//     backends need no external services.
package main
