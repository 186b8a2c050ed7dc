package sinks

import (
	"time"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/progress"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func submitted(reqID string, at time.Time) progress.Submitted {
	return progress.Submitted{
		Request: archive.JobRequest{
			ID:           reqID,
			URL:          "https://media.example/watch?v=" + reqID,
			ExtractAudio: true,
			AudioQuality: 3,
			SubmittedAt:  at,
		},
		At: at,
	}
}

func downloading(reqID, file string, n int64, at time.Time) progress.Downloading {
	return progress.Downloading{
		ReqID:           reqID,
		Filename:        file,
		DownloadedBytes: n,
		TotalBytes:      1000,
		TotalKnown:      true,
		At:              at,
	}
}

func completed(reqID, key string, at time.Time) progress.Completed {
	return progress.Completed{
		ReqID: reqID,
		Artifact: archive.ArtifactRecord{
			Key:          key,
			PrettyName:   "Lecture " + key,
			RelativePath: "/downloads/" + key,
			CreatedAt:    at,
		},
		At: at,
	}
}
