package registry

import (
	"fmt"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// Jobs tracks in-flight jobs keyed by req_id.
type Jobs struct {
	jobs map[string]*archive.Job
}

// NewJobs returns an empty registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*archive.Job)}
}

// Register adds a job in DOWNLOADING state.
func (r *Jobs) Register(req archive.JobRequest) error {
	if _, ok := r.jobs[req.ID]; ok {
		return fmt.Errorf("job %s: %w", req.ID, archive.ErrDuplicate)
	}
	r.jobs[req.ID] = &archive.Job{Request: req, Status: archive.JobStatusDownloading}
	return nil
}

// Progress records byte progress for one file and returns the normalized
// entry. Once the total is known the downloaded count never decreases and
// never exceeds the total. A shrinking total is raised to the bytes already
// recorded.
func (r *Jobs) Progress(reqID, filename string, downloaded, total int64, totalKnown bool) (archive.FileProgress, error) {
	job, ok := r.jobs[reqID]
	if !ok {
		return archive.FileProgress{}, fmt.Errorf("job %s: %w", reqID, archive.ErrNotFound)
	}
	fp := fileFor(job, filename)
	// Estimated totals can shrink mid-transfer; never below what has
	// already been reported.
	if totalKnown && total >= 0 {
		fp.TotalBytes = max(total, fp.DownloadedBytes)
		fp.TotalKnown = true
	}
	if downloaded > fp.DownloadedBytes || !fp.TotalKnown {
		fp.DownloadedBytes = downloaded
	}
	if fp.TotalKnown && fp.DownloadedBytes > fp.TotalBytes {
		fp.DownloadedBytes = fp.TotalBytes
	}
	if fp.DownloadedBytes < 0 {
		fp.DownloadedBytes = 0
	}
	job.Status = archive.JobStatusDownloading
	return *fp, nil
}

// Downloaded marks one file finished. When every known file is finished the
// job moves to DOWNLOADED until its terminal event arrives.
func (r *Jobs) Downloaded(reqID, filename string) (archive.FileProgress, error) {
	job, ok := r.jobs[reqID]
	if !ok {
		return archive.FileProgress{}, fmt.Errorf("job %s: %w", reqID, archive.ErrNotFound)
	}
	fp := fileFor(job, filename)
	fp.Done = true
	if fp.TotalKnown {
		fp.DownloadedBytes = fp.TotalBytes
	}
	job.Status = archive.JobStatusDownloaded
	for _, f := range job.Files {
		if !f.Done {
			job.Status = archive.JobStatusDownloading
			break
		}
	}
	return *fp, nil
}

// Finish removes the job; it is called on the terminal event.
func (r *Jobs) Finish(reqID string) (archive.Job, error) {
	job, ok := r.jobs[reqID]
	if !ok {
		return archive.Job{}, fmt.Errorf("job %s: %w", reqID, archive.ErrNotFound)
	}
	delete(r.jobs, reqID)
	return *job, nil
}

// Get returns a copy of the job.
func (r *Jobs) Get(reqID string) (archive.Job, bool) {
	job, ok := r.jobs[reqID]
	if !ok {
		return archive.Job{}, false
	}
	out := *job
	out.Files = append([]archive.FileProgress(nil), job.Files...)
	return out, true
}

// Len reports the number of jobs in flight.
func (r *Jobs) Len() int {
	return len(r.jobs)
}

func fileFor(job *archive.Job, filename string) *archive.FileProgress {
	for i := range job.Files {
		if job.Files[i].Filename == filename {
			return &job.Files[i]
		}
	}
	job.Files = append(job.Files, archive.FileProgress{Filename: filename})
	return &job.Files[len(job.Files)-1]
}
