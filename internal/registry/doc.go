// Package registry holds the authoritative in-memory state of the archiver:
// jobs in flight and finished artifacts. Neither type locks; both are owned
// by the single event loop goroutine.
package registry
