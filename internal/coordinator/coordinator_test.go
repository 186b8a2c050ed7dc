package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/broadcast"
	"github.com/JakeFAU/media-archiver/internal/progress"
)

type recordingObserver struct {
	id       string
	mu       sync.Mutex
	msgs     []map[string]any
	shutdown bool
}

func (o *recordingObserver) ID() string { return o.id }

func (o *recordingObserver) Send(msg []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(msg, &decoded); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, decoded)
	return nil
}

func (o *recordingObserver) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shutdown = true
}

func (o *recordingObserver) Messages() []map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]map[string]any(nil), o.msgs...)
}

func (o *recordingObserver) Statuses() []string {
	var out []string
	for _, m := range o.Messages() {
		out = append(out, fmt.Sprint(m["status"]))
	}
	return out
}

type fakeFiles struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (f *fakeFiles) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, key)
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Kinds() []progress.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind())
	}
	return out
}

type harness struct {
	bridge *progress.Bridge
	coord  *Coordinator
	files  *fakeFiles
	sinks  *recordingEmitter
	cancel context.CancelFunc
}

func newHarness(t *testing.T, initial ...archive.ArtifactRecord) *harness {
	t.Helper()
	bridge := progress.NewBridge(16)
	files := &fakeFiles{}
	sinks := &recordingEmitter{}
	coord, err := New(Config{
		Events:    bridge,
		Observers: broadcast.NewHub(),
		Files:     files,
		Sinks:     sinks,
		Initial:   initial,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})
	return &harness{bridge: bridge, coord: coord, files: files, sinks: sinks, cancel: cancel}
}

func (h *harness) publish(t *testing.T, events ...progress.Event) {
	t.Helper()
	for _, evt := range events {
		require.NoError(t, h.bridge.Publish(context.Background(), evt))
	}
}

func submittedEvt(reqID string) progress.Submitted {
	return progress.Submitted{Request: archive.JobRequest{ID: reqID, URL: "https://media.example/" + reqID, ExtractAudio: true}}
}

func TestCoordinatorJobLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	obs := &recordingObserver{id: "o1"}
	require.NoError(t, h.coord.Connect(context.Background(), obs))

	rec := archive.ArtifactRecord{Key: "k1", PrettyName: "Talk", RelativePath: "/downloads/k1"}
	h.publish(t,
		submittedEvt("r1"),
		progress.Downloading{ReqID: "r1", Filename: "a.webm", DownloadedBytes: 500, TotalBytes: 1000, TotalKnown: true},
		// Stale progress is normalized, never moving backwards.
		progress.Downloading{ReqID: "r1", Filename: "a.webm", DownloadedBytes: 200, TotalBytes: 1000, TotalKnown: true},
		progress.Downloaded{ReqID: "r1", Filename: "a.webm"},
		progress.Completed{ReqID: "r1", Artifact: rec},
	)

	require.Eventually(t, func() bool { return len(obs.Messages()) == 5 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"CONNECTED", "DOWNLOADING", "DOWNLOADING", "DOWNLOADED", "COMPLETED"}, obs.Statuses())
	msgs := obs.Messages()
	require.EqualValues(t, 500, msgs[2]["downloaded_bytes"])
	require.Equal(t, "k1", msgs[4]["key"])

	snap, err := h.coord.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []archive.ArtifactRecord{rec}, snap)

	stats, err := h.coord.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{JobsInFlight: 0, Artifacts: 1, Observers: 1}, stats)

	require.Eventually(t, func() bool { return len(h.sinks.Kinds()) == 5 }, time.Second, 5*time.Millisecond)
	require.Equal(t, progress.KindSubmitted, h.sinks.Kinds()[0])
}

func TestCoordinatorFailureLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()

	existing := archive.ArtifactRecord{Key: "k0", PrettyName: "Old"}
	h := newHarness(t, existing)
	obs := &recordingObserver{id: "o1"}
	require.NoError(t, h.coord.Connect(context.Background(), obs))

	h.publish(t,
		submittedEvt("r1"),
		progress.Downloading{ReqID: "r1", Filename: "a.webm", DownloadedBytes: 5},
		progress.Failed{ReqID: "r1", Msg: "unsupported url"},
	)
	require.Eventually(t, func() bool { return len(obs.Messages()) == 3 }, time.Second, 5*time.Millisecond)
	last := obs.Messages()[2]
	require.Equal(t, "ERROR", last["status"])
	require.Equal(t, "unsupported url", last["msg"])

	stats, err := h.coord.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, stats.JobsInFlight)
	snap, err := h.coord.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []archive.ArtifactRecord{existing}, snap)

	// The snapshot a new observer receives lists the seeded artifact.
	late := &recordingObserver{id: "o2"}
	require.NoError(t, h.coord.Connect(context.Background(), late))
	first := late.Messages()[0]
	require.Equal(t, "CONNECTED", first["status"])
	require.Len(t, first["downloads"], 1)
}

func TestCoordinatorDropsEventsForUnknownJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	obs := &recordingObserver{id: "o1"}
	require.NoError(t, h.coord.Connect(context.Background(), obs))

	h.publish(t,
		progress.Downloading{ReqID: "ghost", Filename: "a", DownloadedBytes: 1},
		progress.Completed{ReqID: "ghost", Artifact: archive.ArtifactRecord{Key: "k9"}},
		submittedEvt("r1"),
		progress.Failed{ReqID: "r1", Msg: "boom"},
	)
	require.Eventually(t, func() bool { return len(obs.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"CONNECTED", "ERROR"}, obs.Statuses())
	snap, err := h.coord.Snapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestCoordinatorDelete(t *testing.T) {
	t.Parallel()

	h := newHarness(t, archive.ArtifactRecord{Key: "k1", PrettyName: "Talk"})
	obs := &recordingObserver{id: "o1"}
	require.NoError(t, h.coord.Connect(context.Background(), obs))

	err := h.coord.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, archive.ErrNotFound)

	require.NoError(t, h.coord.Delete(context.Background(), "k1"))
	require.Equal(t, []string{"k1"}, h.files.removed)
	require.Equal(t, []string{"CONNECTED", "DELETED"}, obs.Statuses())
	require.Equal(t, "k1", obs.Messages()[1]["key"])

	// A second delete of the same key is unknown.
	require.ErrorIs(t, h.coord.Delete(context.Background(), "k1"), archive.ErrNotFound)
	require.Len(t, obs.Messages(), 2)
}

func TestCoordinatorDeleteFileErrorKeepsRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t, archive.ArtifactRecord{Key: "k1", PrettyName: "Talk"})
	h.files.err = errors.New("permission denied")
	require.Error(t, h.coord.Delete(context.Background(), "k1"))
	snap, err := h.coord.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
}

func TestCoordinatorSnapshotPrecedesEventsUnderConcurrentConnects(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	const observers = 20
	const jobs = 30

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < jobs; i++ {
			reqID := fmt.Sprintf("r%d", i)
			h.publish(t, submittedEvt(reqID), progress.Completed{
				ReqID:    reqID,
				Artifact: archive.ArtifactRecord{Key: fmt.Sprintf("k%02d", i), PrettyName: reqID},
			})
		}
	}()

	obs := make([]*recordingObserver, observers)
	for i := range obs {
		obs[i] = &recordingObserver{id: fmt.Sprintf("o%d", i)}
		wg.Add(1)
		go func(o *recordingObserver) {
			defer wg.Done()
			require.NoError(t, h.coord.Connect(context.Background(), o))
		}(obs[i])
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		snap, err := h.coord.Snapshot(context.Background())
		return err == nil && len(snap) == jobs
	}, 2*time.Second, 5*time.Millisecond)

	for _, o := range obs {
		msgs := o.Messages()
		require.NotEmpty(t, msgs)
		require.Equal(t, "CONNECTED", msgs[0]["status"])
		// Snapshot plus every later COMPLETED covers all artifacts exactly once.
		seen := map[string]bool{}
		for _, d := range msgs[0]["downloads"].([]any) {
			seen[d.(map[string]any)["key"].(string)] = true
		}
		for _, m := range msgs[1:] {
			require.Equal(t, "COMPLETED", m["status"])
			key := m["key"].(string)
			require.False(t, seen[key], "artifact %s delivered twice", key)
			seen[key] = true
		}
		require.Len(t, seen, jobs)
	}
}

func TestCoordinatorStopClosesObserversAndRejectsCommands(t *testing.T) {
	t.Parallel()

	bridge := progress.NewBridge(4)
	coord, err := New(Config{Events: bridge, Files: &fakeFiles{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)

	obs := &recordingObserver{id: "o1"}
	require.NoError(t, coord.Connect(context.Background(), obs))

	cancel()
	<-coord.Done()
	obs.mu.Lock()
	require.True(t, obs.shutdown)
	obs.mu.Unlock()

	_, err = coord.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, coord.Connect(context.Background(), &recordingObserver{id: "o2"}), ErrStopped)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	_, err = New(Config{Events: progress.NewBridge(1)})
	require.Error(t, err)
	_, err = New(Config{
		Events:  progress.NewBridge(1),
		Files:   &fakeFiles{},
		Initial: []archive.ArtifactRecord{{Key: "k"}, {Key: "k"}},
	})
	require.ErrorIs(t, err, archive.ErrDuplicate)
}
