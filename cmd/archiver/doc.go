// Package main hosts the media archiver entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts submissions and removals, lists the archive, serves finished files
//     read-only under the download prefix, and upgrades /api/status to a websocket for live progress.
//   - Gateway & dispatcher: submissions are validated by internal/gateway, announced as SUBMITTED and handed to
//     internal/dispatcher, which runs each job in its own goroutine until the retrieval finishes.
//   - Retrieval: internal/worker drives a yt-dlp backed internal/engine into a fresh artifact directory and relays
//     per-file progress as DOWNLOADING/DOWNLOADED events, ending with COMPLETED or ERROR.
//   - Event loop: every event flows through the lossless progress bridge into internal/coordinator, the only owner
//     of job and artifact state. It broadcasts JSON messages to observers and forwards events to the sink hub.
//   - Sinks: the batching progress hub fans events out to logs, Prometheus, Postgres job history, Pub/Sub or NATS
//     exports, a Redis status cache, and a GCS or directory mirror. Sinks are best effort and never stall the loop.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM stops HTTP, waits for running jobs up to server.shutdown_timeout (then interrupts
//     them), drains the event loop, says goodbye to observers and flushes sinks.
//   - Configuration: Viper reads an optional file (-config) and ARCHIVER_* environment variables; a local .env file
//     is loaded first when present. storage.download_dir is required.
//
// Quick checklist:
//   - Configure env vars: ARCHIVER_STORAGE_DOWNLOAD_DIR, ARCHIVER_SERVER_PORT, ARCHIVER_ENGINE_FFMPEG_DIR, and the
//     optional ARCHIVER_DB_DSN, ARCHIVER_PUBSUB_*, ARCHIVER_NATS_URL, ARCHIVER_REDIS_ADDR, ARCHIVER_STORAGE_GCS_BUCKET.
//   - Run locally: go run ./cmd/archiver -config config.yaml (or rely solely on env overrides).
//   - One-off fetch without the service: go run ./cmd/archiver download -extract-audio -o ./out URL.
//   - yt-dlp must be on PATH unless engine.auto_install is set; ffmpeg is needed for merging and MP3 extraction.
package main
