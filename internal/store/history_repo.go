// Package store declares interfaces for recording job history.
package store

import (
	"context"
	"time"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// RunStatus mirrors the job_runs status column.
type RunStatus string

// Job run statuses persisted in job_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunResult captures how a job run ended.
type RunResult struct {
	// ReqID is the job's req_id and the job_runs primary key.
	ReqID string
	// Status is success or error.
	Status     RunStatus
	FinishedAt time.Time
	// ArtifactKey is set for successful runs.
	ArtifactKey *string
	// ErrorMessage optionally stores the failure reason.
	ErrorMessage *string
	// BytesDownloaded sums the final byte counts of every file in the run.
	BytesDownloaded int64
	// Files counts the files reported during the run.
	Files int
}

// HistoryRepository is an append-style audit trail of job runs. It is never
// read back to rebuild in-memory state.
type HistoryRepository interface {
	// RecordSubmitted inserts (or idempotently updates) a running row.
	RecordSubmitted(ctx context.Context, req archive.JobRequest) error
	// RecordFinished marks the run finished.
	RecordFinished(ctx context.Context, result RunResult) error
	// RecordArtifactDeleted stamps deleted_at on the run that produced key.
	RecordArtifactDeleted(ctx context.Context, key string, at time.Time) error
}
