package progress

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// StatusConnected is the discriminator of the snapshot sent on connect.
const StatusConnected = "CONNECTED"

// ErrNotBroadcast is returned by Encode for events that stay in-process.
var ErrNotBroadcast = errors.New("event is not broadcast to observers")

type downloadingMessage struct {
	Status          Kind   `json:"status"`
	ReqID           string `json:"req_id"`
	Filename        string `json:"filename"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	TotalBytes      *int64 `json:"total_bytes"`
}

type downloadedMessage struct {
	Status   Kind   `json:"status"`
	ReqID    string `json:"req_id"`
	Filename string `json:"filename"`
}

type completedMessage struct {
	Status     Kind   `json:"status"`
	ReqID      string `json:"req_id"`
	PrettyName string `json:"pretty_name"`
	Key        string `json:"key"`
	Path       string `json:"path"`
	InfoFile   string `json:"info_file,omitempty"`
	VideoFile  string `json:"video_file,omitempty"`
	AudioFile  string `json:"audio_file,omitempty"`
}

type errorMessage struct {
	Status Kind   `json:"status"`
	ReqID  string `json:"req_id"`
	Msg    string `json:"msg"`
}

type deletedMessage struct {
	Status Kind   `json:"status"`
	Key    string `json:"key"`
}

// SnapshotEntry is one artifact in the CONNECTED message.
type SnapshotEntry struct {
	PrettyName string `json:"pretty_name"`
	Key        string `json:"key"`
	Path       string `json:"path"`
}

// Snapshot is the CONNECTED message establishing an observer's baseline.
type Snapshot struct {
	Status    string          `json:"status"`
	Downloads []SnapshotEntry `json:"downloads"`
}

// Encode renders evt as the JSON message observers receive.
func Encode(evt Event) ([]byte, error) {
	var msg any
	switch e := evt.(type) {
	case Downloading:
		m := downloadingMessage{
			Status:          e.Kind(),
			ReqID:           e.ReqID,
			Filename:        e.Filename,
			DownloadedBytes: e.DownloadedBytes,
		}
		if e.TotalKnown {
			total := e.TotalBytes
			m.TotalBytes = &total
		}
		msg = m
	case Downloaded:
		msg = downloadedMessage{Status: e.Kind(), ReqID: e.ReqID, Filename: e.Filename}
	case Completed:
		msg = completedMessage{
			Status:     e.Kind(),
			ReqID:      e.ReqID,
			PrettyName: e.Artifact.PrettyName,
			Key:        e.Artifact.Key,
			Path:       e.Artifact.RelativePath,
			InfoFile:   e.Artifact.InfoFile,
			VideoFile:  e.Artifact.VideoFile,
			AudioFile:  e.Artifact.AudioFile,
		}
	case Failed:
		msg = errorMessage{Status: e.Kind(), ReqID: e.ReqID, Msg: e.Msg}
	case Deleted:
		msg = deletedMessage{Status: e.Kind(), Key: e.Key}
	case Submitted:
		return nil, ErrNotBroadcast
	default:
		return nil, fmt.Errorf("encode: unknown event type %T", evt)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.Kind(), err)
	}
	return data, nil
}

// NewSnapshot builds the CONNECTED payload from the artifact store contents.
func NewSnapshot(records []archive.ArtifactRecord) Snapshot {
	entries := make([]SnapshotEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, SnapshotEntry{
			PrettyName: rec.PrettyName,
			Key:        rec.Key,
			Path:       rec.RelativePath,
		})
	}
	return Snapshot{Status: StatusConnected, Downloads: entries}
}

// EncodeSnapshot renders the CONNECTED message.
func EncodeSnapshot(records []archive.ArtifactRecord) ([]byte, error) {
	data, err := json.Marshal(NewSnapshot(records))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}
