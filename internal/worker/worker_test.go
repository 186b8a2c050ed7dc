package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/engine"
	"github.com/JakeFAU/media-archiver/internal/progress"
	"github.com/JakeFAU/media-archiver/internal/storage/local"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []progress.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt progress.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Kinds() []progress.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]progress.Kind, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Kind())
	}
	return out
}

func (p *recordingPublisher) Last() progress.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fakeEngine struct {
	updates []engine.Update
	files   map[string]string
	result  engine.Result
	err     error
	late    chan engine.ProgressFunc
}

func (f *fakeEngine) Retrieve(_ context.Context, req engine.Request, progressFn engine.ProgressFunc) (engine.Result, error) {
	for _, u := range f.updates {
		progressFn(u)
	}
	if f.late != nil {
		f.late <- progressFn
	}
	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		return engine.Result{}, err
	}
	for name, body := range f.files {
		if err := os.WriteFile(filepath.Join(req.OutputDir, name), []byte(body), 0o600); err != nil {
			return engine.Result{}, err
		}
	}
	return f.result, f.err
}

type seqIDs struct {
	mu  sync.Mutex
	ids []string
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return "", errors.New("out of ids")
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestWorker(t *testing.T, eng engine.Engine, pub *recordingPublisher, ids ...string) (*Worker, *local.Library) {
	t.Helper()
	lib, err := local.NewLibrary(t.TempDir(), "/downloads", zap.NewNop())
	require.NoError(t, err)
	return New(eng, pub, lib, &seqIDs{ids: ids}, fixedClock{now: time.Unix(100, 0).UTC()}, zap.NewNop()), lib
}

func testRequest() archive.JobRequest {
	return archive.JobRequest{ID: "req-1", URL: "https://example.com/v", DownloadVideo: true, ExtractAudio: true, AudioQuality: 3}
}

func TestWorkerProcessSuccess(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		updates: []engine.Update{
			{Filename: "/scratch/job-1/Clip.f137.mp4", DownloadedBytes: 10, TotalBytes: 100, TotalKnown: true},
			{Filename: "/scratch/job-1/Clip.f137.mp4", DownloadedBytes: 100, TotalBytes: 100, TotalKnown: true, Finished: true},
		},
		files:  map[string]string{"Clip.json": "{}", "Clip.mkv": "v", "Clip.mp3": "a"},
		result: engine.Result{Title: "Clip", InfoFile: "Clip.json", VideoFile: "Clip.mkv", AudioFile: "Clip.mp3"},
	}
	pub := &recordingPublisher{}
	w, lib := newTestWorker(t, eng, pub, "req-1", "key-1")

	w.Process(context.Background(), testRequest())

	require.Equal(t, []progress.Kind{progress.KindDownloading, progress.KindDownloaded, progress.KindCompleted}, pub.Kinds())
	first, ok := pub.events[0].(progress.Downloading)
	require.True(t, ok)
	require.Equal(t, "Clip.f137.mp4", first.Filename)
	require.Equal(t, "req-1", first.ReqID)

	done, ok := pub.Last().(progress.Completed)
	require.True(t, ok)
	require.Equal(t, "key-1", done.Artifact.Key, "a key equal to the req_id is skipped")
	require.Equal(t, "Clip", done.Artifact.PrettyName)
	require.Equal(t, "/downloads/key-1", done.Artifact.RelativePath)
	require.Equal(t, "/downloads/key-1/Clip.json", done.Artifact.InfoFile)
	require.Equal(t, "/downloads/key-1/Clip.mkv", done.Artifact.VideoFile)
	require.Equal(t, "/downloads/key-1/Clip.mp3", done.Artifact.AudioFile)
	require.FileExists(t, filepath.Join(lib.Root(), "key-1", "Clip.mkv"))
}

func TestWorkerProcessFailureRemovesPartialOutput(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		updates: []engine.Update{{Filename: "a.webm", DownloadedBytes: 5}},
		files:   map[string]string{"a.webm.part": "x"},
		err:     errors.New("unsupported URL"),
	}
	pub := &recordingPublisher{}
	w, lib := newTestWorker(t, eng, pub, "key-1")

	w.Process(context.Background(), testRequest())

	require.Equal(t, []progress.Kind{progress.KindDownloading, progress.KindError}, pub.Kinds())
	failed, ok := pub.Last().(progress.Failed)
	require.True(t, ok)
	require.Equal(t, "unsupported URL", failed.Msg)
	require.NoDirExists(t, filepath.Join(lib.Root(), "key-1"))
}

func TestWorkerProcessKeyGenerationFailure(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	w, _ := newTestWorker(t, &fakeEngine{}, pub)

	w.Process(context.Background(), testRequest())

	require.Equal(t, []progress.Kind{progress.KindError}, pub.Kinds())
}

func TestWorkerDiscardsLateCallbacks(t *testing.T) {
	t.Parallel()

	late := make(chan engine.ProgressFunc, 1)
	eng := &fakeEngine{
		files:  map[string]string{"A.json": "{}", "A.mp3": "a"},
		result: engine.Result{Title: "A", InfoFile: "A.json", AudioFile: "A.mp3"},
		late:   late,
	}
	pub := &recordingPublisher{}
	w, _ := newTestWorker(t, eng, pub, "key-1")

	w.Process(context.Background(), testRequest())
	fn := <-late
	fn(engine.Update{Filename: "A.webm", DownloadedBytes: 1})

	require.Equal(t, []progress.Kind{progress.KindCompleted}, pub.Kinds())
}

func TestWorkerTerminalEventSurvivesCancellation(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{err: context.Canceled}
	pub := &recordingPublisher{}
	w, _ := newTestWorker(t, eng, pub, "key-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Process(ctx, testRequest())

	require.Equal(t, []progress.Kind{progress.KindError}, pub.Kinds())
}
