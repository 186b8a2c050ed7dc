// Package progress provides the event variants produced by retrieval jobs, the
// ordered Bridge that carries them from worker goroutines to the single event
// loop, and a non-blocking Hub that batches applied events out to pluggable
// sinks such as Prometheus metrics, logs, or external brokers.
package progress
