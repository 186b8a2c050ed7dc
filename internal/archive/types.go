// Package archive defines core types shared across subsystems.
package archive

import (
	"sort"
	"time"
)

// JobStatus represents the lifecycle state of a retrieval job.
type JobStatus string

// Job status values tracked by the job registry.
const (
	JobStatusDownloading JobStatus = "DOWNLOADING"
	JobStatusDownloaded  JobStatus = "DOWNLOADED"
	JobStatusCompleted   JobStatus = "COMPLETED"
	JobStatusError       JobStatus = "ERROR"
)

// IsTerminal reports whether no further events follow for the job.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Audio quality bounds for MP3 VBR extraction.
const (
	MinAudioQuality = 1
	MaxAudioQuality = 5
)

// JobRequest captures one accepted submission. It is immutable once created.
type JobRequest struct {
	ID            string    `json:"req_id"`
	URL           string    `json:"url"`
	DownloadVideo bool      `json:"download_video"`
	ExtractAudio  bool      `json:"extract_audio"`
	AudioQuality  int       `json:"audio_quality"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// FileProgress tracks the transfer of one constituent file of a job.
type FileProgress struct {
	Filename        string `json:"filename"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	// TotalBytes is only meaningful when TotalKnown is set.
	TotalBytes int64 `json:"total_bytes"`
	TotalKnown bool  `json:"-"`
	Done       bool  `json:"done"`
}

// Job is the runtime view of an in-flight JobRequest.
type Job struct {
	Request JobRequest
	Status  JobStatus
	// Files is ordered by first appearance of each filename.
	Files []FileProgress
}

// ArtifactRecord describes a completed, downloadable output. All paths are
// user-facing links under the download prefix, never disk paths.
type ArtifactRecord struct {
	Key          string    `json:"key"`
	PrettyName   string    `json:"pretty_name"`
	RelativePath string    `json:"path"`
	InfoFile     string    `json:"info_file,omitempty"`
	VideoFile    string    `json:"video_file,omitempty"`
	AudioFile    string    `json:"audio_file,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SortArtifacts orders records alphabetically by pretty name, then key.
func SortArtifacts(records []ArtifactRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].PrettyName != records[j].PrettyName {
			return records[i].PrettyName < records[j].PrettyName
		}
		return records[i].Key < records[j].Key
	})
}
