package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

type blockingProcessor struct {
	mu      sync.Mutex
	started []string
	release chan struct{}
}

func (p *blockingProcessor) Process(ctx context.Context, req archive.JobRequest) {
	p.mu.Lock()
	p.started = append(p.started, req.ID)
	p.mu.Unlock()
	select {
	case <-p.release:
	case <-ctx.Done():
	}
}

func (p *blockingProcessor) Started() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.started)
}

func TestDispatchRunsJobsConcurrently(t *testing.T) {
	t.Parallel()

	proc := &blockingProcessor{release: make(chan struct{})}
	d := New(context.Background(), proc)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Dispatch(archive.JobRequest{ID: id}))
	}

	require.Eventually(t, func() bool { return proc.Started() == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 3, d.InFlight())

	close(proc.release)
	require.NoError(t, d.Wait(context.Background()))
	require.Equal(t, 0, d.InFlight())
}

func TestWaitTimesOutAndRejectsNewJobs(t *testing.T) {
	t.Parallel()

	proc := &blockingProcessor{release: make(chan struct{})}
	d := New(context.Background(), proc)
	require.NoError(t, d.Dispatch(archive.JobRequest{ID: "slow"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, d.Dispatch(archive.JobRequest{ID: "late"}), ErrStopped)

	close(proc.release)
	require.NoError(t, d.Wait(context.Background()))
}

func TestCancellingBaseInterruptsJobs(t *testing.T) {
	t.Parallel()

	proc := &blockingProcessor{release: make(chan struct{})}
	base, cancel := context.WithCancel(context.Background())
	d := New(base, proc)
	require.NoError(t, d.Dispatch(archive.JobRequest{ID: "a"}))
	require.Eventually(t, func() bool { return proc.Started() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, d.Wait(context.Background()))
}
