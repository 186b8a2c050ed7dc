package sinks

import (
	"sync"
	"time"
)

// jobTracker follows per-job state across batches: when the job was
// submitted and the last byte count reported for each of its files.
type jobTracker struct {
	mu   sync.Mutex
	jobs map[string]*trackedJob
}

type trackedJob struct {
	submittedAt time.Time
	files       map[string]int64
	order       []string
}

func newJobTracker() *jobTracker {
	return &jobTracker{jobs: make(map[string]*trackedJob)}
}

// start registers reqID and reports whether it was new.
func (t *jobTracker) start(reqID string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[reqID]; ok {
		return false
	}
	t.jobs[reqID] = &trackedJob{submittedAt: at, files: make(map[string]int64)}
	return true
}

// observe records the byte count for a file and returns the positive delta
// since the previous report.
func (t *jobTracker) observe(reqID, filename string, downloaded int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.jobs[reqID]
	if job == nil {
		job = &trackedJob{files: make(map[string]int64)}
		t.jobs[reqID] = job
	}
	prev, seen := job.files[filename]
	if !seen {
		job.order = append(job.order, filename)
	}
	if downloaded <= prev {
		return 0
	}
	job.files[filename] = downloaded
	return downloaded - prev
}

type jobSummary struct {
	tracked     bool
	submittedAt time.Time
	files       int
	bytes       int64
}

// finish forgets reqID and returns what was recorded for it.
func (t *jobTracker) finish(reqID string) jobSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[reqID]
	if !ok {
		return jobSummary{}
	}
	delete(t.jobs, reqID)
	sum := jobSummary{tracked: true, submittedAt: job.submittedAt, files: len(job.order)}
	for _, b := range job.files {
		sum.bytes += b
	}
	return sum
}
