// Package sinks implements concrete consumers of applied archiver events:
// Prometheus collectors, structured logs, the Postgres job history, message
// brokers, a Redis status cache and the artifact mirror. Each sink satisfies
// progress.Sink and is best-effort; none of them is authoritative state.
package sinks
