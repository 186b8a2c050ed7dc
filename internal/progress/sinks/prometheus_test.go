package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-archiver/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow a job lifecycle.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		submitted("r1", baseTime),
		submitted("r2", baseTime),
		downloading("r1", "a.webm", 100, baseTime.Add(time.Second)),
		downloading("r1", "a.webm", 400, baseTime.Add(2*time.Second)),
		// Repeated counts add nothing.
		downloading("r1", "a.webm", 400, baseTime.Add(3*time.Second)),
		downloading("r1", "b.m4a", 50, baseTime.Add(3*time.Second)),
		progress.Downloaded{ReqID: "r1", Filename: "a.webm", At: baseTime.Add(4 * time.Second)},
		completed("r1", "k1", baseTime.Add(10*time.Second)),
		progress.Failed{ReqID: "r2", Msg: "unsupported", At: baseTime.Add(time.Second)},
		progress.Deleted{Key: "k1", At: baseTime.Add(20 * time.Second)},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsSubmitted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.InDelta(t, 450.0, testutil.ToFloat64(sink.bytesDownloaded), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(sink.filesDownloaded))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.artifactsDeleted))
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "archiver_job_runtime_seconds"))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
