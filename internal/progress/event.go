package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// Kind is the status discriminator of an Event.
type Kind string

// Supported event kinds. Submitted never leaves the process; the others
// match the "status" field observers receive.
const (
	KindSubmitted   Kind = "SUBMITTED"
	KindDownloading Kind = "DOWNLOADING"
	KindDownloaded  Kind = "DOWNLOADED"
	KindCompleted   Kind = "COMPLETED"
	KindError       Kind = "ERROR"
	KindDeleted     Kind = "DELETED"
)

// Event is a closed set of state transitions. Only types in this package
// implement it.
type Event interface {
	Kind() Kind
	// RequestID returns the owning req_id, or "" for artifact-level events.
	RequestID() string
	Time() time.Time
	Validate() error
	event()
}

// Submitted registers an accepted job with the event loop.
type Submitted struct {
	Request archive.JobRequest
	At      time.Time
}

// Downloading reports byte progress for one constituent file.
type Downloading struct {
	ReqID           string
	Filename        string
	DownloadedBytes int64
	TotalBytes      int64
	TotalKnown      bool
	At              time.Time
}

// Downloaded reports that one constituent file finished transferring.
type Downloaded struct {
	ReqID    string
	Filename string
	At       time.Time
}

// Completed is the terminal success event carrying the new artifact.
type Completed struct {
	ReqID    string
	Artifact archive.ArtifactRecord
	At       time.Time
}

// Failed is the terminal failure event; observers see it as ERROR.
type Failed struct {
	ReqID string
	Msg   string
	At    time.Time
}

// Deleted reports that an artifact was removed.
type Deleted struct {
	Key string
	At  time.Time
}

func (Submitted) Kind() Kind   { return KindSubmitted }
func (Downloading) Kind() Kind { return KindDownloading }
func (Downloaded) Kind() Kind  { return KindDownloaded }
func (Completed) Kind() Kind   { return KindCompleted }
func (Failed) Kind() Kind      { return KindError }
func (Deleted) Kind() Kind     { return KindDeleted }

func (e Submitted) RequestID() string   { return e.Request.ID }
func (e Downloading) RequestID() string { return e.ReqID }
func (e Downloaded) RequestID() string  { return e.ReqID }
func (e Completed) RequestID() string   { return e.ReqID }
func (e Failed) RequestID() string      { return e.ReqID }
func (Deleted) RequestID() string       { return "" }

func (e Submitted) Time() time.Time   { return e.At }
func (e Downloading) Time() time.Time { return e.At }
func (e Downloaded) Time() time.Time  { return e.At }
func (e Completed) Time() time.Time   { return e.At }
func (e Failed) Time() time.Time      { return e.At }
func (e Deleted) Time() time.Time     { return e.At }

func (Submitted) event()   {}
func (Downloading) event() {}
func (Downloaded) event()  {}
func (Completed) event()   {}
func (Failed) event()      {}
func (Deleted) event()     {}

// Validate performs coarse validation on the payload.
func (e Submitted) Validate() error {
	if e.Request.ID == "" {
		return errors.New("submitted: req_id is required")
	}
	if e.Request.URL == "" {
		return errors.New("submitted: url is required")
	}
	return nil
}

// Validate performs coarse validation on the payload.
func (e Downloading) Validate() error {
	if e.ReqID == "" || e.Filename == "" {
		return errors.New("downloading: req_id and filename are required")
	}
	if e.DownloadedBytes < 0 || e.TotalBytes < 0 {
		return fmt.Errorf("downloading: negative byte counts %d/%d", e.DownloadedBytes, e.TotalBytes)
	}
	return nil
}

// Validate performs coarse validation on the payload.
func (e Downloaded) Validate() error {
	if e.ReqID == "" || e.Filename == "" {
		return errors.New("downloaded: req_id and filename are required")
	}
	return nil
}

// Validate performs coarse validation on the payload.
func (e Completed) Validate() error {
	if e.ReqID == "" {
		return errors.New("completed: req_id is required")
	}
	if e.Artifact.Key == "" {
		return errors.New("completed: artifact key is required")
	}
	if e.Artifact.Key == e.ReqID {
		return errors.New("completed: artifact key must differ from req_id")
	}
	return nil
}

// Validate performs coarse validation on the payload.
func (e Failed) Validate() error {
	if e.ReqID == "" {
		return errors.New("error: req_id is required")
	}
	return nil
}

// Validate performs coarse validation on the payload.
func (e Deleted) Validate() error {
	if e.Key == "" {
		return errors.New("deleted: key is required")
	}
	return nil
}
