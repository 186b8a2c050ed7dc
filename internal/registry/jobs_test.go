package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

func newJob(t *testing.T, reqID string) *Jobs {
	t.Helper()
	jobs := NewJobs()
	require.NoError(t, jobs.Register(archive.JobRequest{ID: reqID, URL: "https://media.example/" + reqID, ExtractAudio: true}))
	return jobs
}

func TestJobsRegister(t *testing.T) {
	t.Parallel()

	jobs := newJob(t, "r1")
	require.Equal(t, 1, jobs.Len())
	require.ErrorIs(t, jobs.Register(archive.JobRequest{ID: "r1"}), archive.ErrDuplicate)

	job, ok := jobs.Get("r1")
	require.True(t, ok)
	require.Equal(t, archive.JobStatusDownloading, job.Status)
	require.Empty(t, job.Files)
}

func TestJobsProgressMonotonicOnceTotalKnown(t *testing.T) {
	t.Parallel()

	jobs := newJob(t, "r1")

	fp, err := jobs.Progress("r1", "a.webm", 100, 0, false)
	require.NoError(t, err)
	require.False(t, fp.TotalKnown)
	require.Equal(t, int64(100), fp.DownloadedBytes)

	fp, err = jobs.Progress("r1", "a.webm", 400, 1000, true)
	require.NoError(t, err)
	require.True(t, fp.TotalKnown)
	require.Equal(t, int64(400), fp.DownloadedBytes)

	// A stale callback cannot move progress backwards.
	fp, err = jobs.Progress("r1", "a.webm", 300, 1000, true)
	require.NoError(t, err)
	require.Equal(t, int64(400), fp.DownloadedBytes)

	// Overshoot is clamped to the total.
	fp, err = jobs.Progress("r1", "a.webm", 1200, 1000, true)
	require.NoError(t, err)
	require.Equal(t, int64(1000), fp.DownloadedBytes)

	// Later updates without a total keep the known total.
	fp, err = jobs.Progress("r1", "a.webm", 500, 0, false)
	require.NoError(t, err)
	require.True(t, fp.TotalKnown)
	require.Equal(t, int64(1000), fp.DownloadedBytes)
}

func TestJobsProgressShrinkingTotal(t *testing.T) {
	t.Parallel()

	jobs := newJob(t, "r1")

	fp, err := jobs.Progress("r1", "v.mp4", 900, 1000, true)
	require.NoError(t, err)
	require.Equal(t, int64(900), fp.DownloadedBytes)
	require.Equal(t, int64(1000), fp.TotalBytes)

	// The estimate drops below what was already transferred.
	fp, err = jobs.Progress("r1", "v.mp4", 950, 800, true)
	require.NoError(t, err)
	require.Equal(t, int64(900), fp.DownloadedBytes)
	require.Equal(t, int64(900), fp.TotalBytes)

	fp, err = jobs.Progress("r1", "v.mp4", 1100, 1200, true)
	require.NoError(t, err)
	require.Equal(t, int64(1100), fp.DownloadedBytes)
	require.Equal(t, int64(1200), fp.TotalBytes)

	last := fp.DownloadedBytes
	for _, total := range []int64{1150, 600, 1300, 0} {
		fp, err = jobs.Progress("r1", "v.mp4", last+10, total, true)
		require.NoError(t, err)
		require.GreaterOrEqual(t, fp.DownloadedBytes, last)
		require.LessOrEqual(t, fp.DownloadedBytes, fp.TotalBytes)
		last = fp.DownloadedBytes
	}
}

func TestJobsFilesKeepFirstAppearanceOrder(t *testing.T) {
	t.Parallel()

	jobs := newJob(t, "r1")
	for _, name := range []string{"b.m4a", "a.webm", "b.m4a", "c.vtt"} {
		_, err := jobs.Progress("r1", name, 1, 10, true)
		require.NoError(t, err)
	}
	job, _ := jobs.Get("r1")
	names := make([]string, 0, len(job.Files))
	for _, f := range job.Files {
		names = append(names, f.Filename)
	}
	require.Equal(t, []string{"b.m4a", "a.webm", "c.vtt"}, names)
}

func TestJobsDownloadedAdvancesStatus(t *testing.T) {
	t.Parallel()

	jobs := newJob(t, "r1")
	_, err := jobs.Progress("r1", "a.webm", 10, 100, true)
	require.NoError(t, err)
	_, err = jobs.Progress("r1", "b.m4a", 10, 50, true)
	require.NoError(t, err)

	fp, err := jobs.Downloaded("r1", "a.webm")
	require.NoError(t, err)
	require.True(t, fp.Done)
	require.Equal(t, int64(100), fp.DownloadedBytes)
	job, _ := jobs.Get("r1")
	require.Equal(t, archive.JobStatusDownloading, job.Status)

	_, err = jobs.Downloaded("r1", "b.m4a")
	require.NoError(t, err)
	job, _ = jobs.Get("r1")
	require.Equal(t, archive.JobStatusDownloaded, job.Status)
}

func TestJobsUnknownRequest(t *testing.T) {
	t.Parallel()

	jobs := NewJobs()
	_, err := jobs.Progress("nope", "a", 1, 1, true)
	require.ErrorIs(t, err, archive.ErrNotFound)
	_, err = jobs.Downloaded("nope", "a")
	require.ErrorIs(t, err, archive.ErrNotFound)
	_, err = jobs.Finish("nope")
	require.ErrorIs(t, err, archive.ErrNotFound)
}

func TestJobsFinishRemoves(t *testing.T) {
	t.Parallel()

	jobs := newJob(t, "r1")
	job, err := jobs.Finish("r1")
	require.NoError(t, err)
	require.Equal(t, "r1", job.Request.ID)
	require.Zero(t, jobs.Len())
	_, ok := jobs.Get("r1")
	require.False(t, ok)
}

func TestJobsGetReturnsCopy(t *testing.T) {
	t.Parallel()

	jobs := newJob(t, "r1")
	_, err := jobs.Progress("r1", "a.webm", 1, 10, true)
	require.NoError(t, err)
	job, _ := jobs.Get("r1")
	job.Files[0].DownloadedBytes = 9
	again, _ := jobs.Get("r1")
	require.Equal(t, int64(1), again.Files[0].DownloadedBytes)
}
