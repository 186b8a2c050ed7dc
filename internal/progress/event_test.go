package progress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := []Event{
		Submitted{Request: archive.JobRequest{ID: "r1", URL: "https://example.com/v"}},
		sampleDownloading("r1", 0),
		Downloaded{ReqID: "r1", Filename: "a.mp3"},
		Completed{ReqID: "r1", Artifact: archive.ArtifactRecord{Key: "k1"}},
		Failed{ReqID: "r1"},
		Deleted{Key: "k1"},
	}
	for _, evt := range valid {
		require.NoError(t, evt.Validate(), "%T", evt)
	}

	invalid := []Event{
		Submitted{Request: archive.JobRequest{ID: "r1"}},
		Downloading{ReqID: "r1", Filename: "a", DownloadedBytes: -1},
		Downloaded{ReqID: "r1"},
		Completed{ReqID: "r1", Artifact: archive.ArtifactRecord{Key: "r1"}},
		Failed{},
		Deleted{},
	}
	for _, evt := range invalid {
		require.Error(t, evt.Validate(), "%T", evt)
	}
}

func TestEventKindsAndRequestIDs(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindError, Failed{ReqID: "r1"}.Kind())
	require.Equal(t, "r1", Failed{ReqID: "r1"}.RequestID())
	require.Equal(t, "", Deleted{Key: "k"}.RequestID())
	require.Equal(t, "r2", Submitted{Request: archive.JobRequest{ID: "r2"}}.RequestID())
}
