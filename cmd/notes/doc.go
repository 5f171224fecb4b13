// Package main hosts the notes service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics and link endpoints. Saving an article's links runs the
//     reconciler, which diffs the extracted URLs against the stored set and submits one best-effort enrichment
//     request when new links appear.
//   - Enrichment: a single worker goroutine owns the browser session (chromedp by default, go-rod optional) and
//     drains a bounded in-memory queue sized by enrichment.queue_depth. Submissions never block; a full queue drops
//     the request and the links stay pending until the next restart resubmits them.
//   - Persistence & fanout: links live in Postgres (or memory when no DSN is configured). Each enriched link stores
//     title, body text, detected language, a body screenshot and a refreshed search vector. Screenshots can also be
//     archived to GCS or the local filesystem, and a link.enriched event is published when Pub/Sub is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Startup: the browser must start and the pending-link resync must succeed, otherwise the process exits.
//   - Shutdown: on SIGTERM the HTTP server drains, then the worker is sent a shutdown message and the process waits
//     (up to enrichment.shutdown_timeout_seconds) for its acknowledgment before closing the browser. Requests queued
//     behind the shutdown message are discarded; their links remain pending for the next run.
//
// Quick checklist:
//   - Configure env vars: NOTES_SERVER_PORT, NOTES_DB_DSN, NOTES_BROWSER_DRIVER, NOTES_BROWSER_EXEC_PATH,
//     NOTES_ENRICHMENT_QUEUE_DEPTH, archive (NOTES_ARCHIVE_*), and pubsub (NOTES_PUBSUB_*).
//   - Run locally: go run ./cmd/notes -config config.yaml (or rely solely on env overrides).
package main
