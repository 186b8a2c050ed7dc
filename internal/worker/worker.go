// Package worker runs one retrieval job: it drives the engine, relays its
// progress onto the bridge and reports exactly one terminal outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/engine"
	"github.com/JakeFAU/media-archiver/internal/progress"
)

// EventPublisher accepts events for the coordinator.
type EventPublisher interface {
	Publish(ctx context.Context, evt progress.Event) error
}

// Library maps artifact keys to directories and user-facing links.
type Library interface {
	Dir(key string) (string, error)
	Link(key, name string) string
	Remove(key string) error
}

// Worker executes jobs. It is safe to call Process from many goroutines.
type Worker struct {
	engine  engine.Engine
	events  EventPublisher
	library Library
	ids     archive.IDGenerator
	clock   archive.Clock
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	eng engine.Engine,
	events EventPublisher,
	library Library,
	ids archive.IDGenerator,
	clock archive.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		engine:  eng,
		events:  events,
		library: library,
		ids:     ids,
		clock:   clock,
		logger:  logger,
	}
}

// Process runs req to completion. Progress is published with ctx; the
// terminal event is published even if ctx has ended so observers always
// learn the outcome.
func (w *Worker) Process(ctx context.Context, req archive.JobRequest) {
	logger := w.logger.With(zap.String("req_id", req.ID), zap.String("url", req.URL))
	logger.Info("job started",
		zap.Bool("download_video", req.DownloadVideo),
		zap.Bool("extract_audio", req.ExtractAudio))

	rec, err := w.retrieve(ctx, req, logger)
	final := context.WithoutCancel(ctx)
	var evt progress.Event
	if err != nil {
		logger.Warn("job failed", zap.Error(err))
		evt = progress.Failed{ReqID: req.ID, Msg: err.Error(), At: w.clock.Now()}
	} else {
		logger.Info("job completed", zap.String("key", rec.Key), zap.String("title", rec.PrettyName))
		evt = progress.Completed{ReqID: req.ID, Artifact: rec, At: w.clock.Now()}
	}
	if err := w.events.Publish(final, evt); err != nil {
		logger.Error("publish terminal event failed", zap.String("status", string(evt.Kind())), zap.Error(err))
	}
}

func (w *Worker) retrieve(ctx context.Context, req archive.JobRequest, logger *zap.Logger) (archive.ArtifactRecord, error) {
	key, err := w.newKey(req.ID)
	if err != nil {
		return archive.ArtifactRecord{}, err
	}
	dir, err := w.library.Dir(key)
	if err != nil {
		return archive.ArtifactRecord{}, err
	}

	relay := newRelay(ctx, req.ID, w.events, w.clock, logger)
	res, err := w.engine.Retrieve(ctx, engine.Request{
		URL:           req.URL,
		DownloadVideo: req.DownloadVideo,
		ExtractAudio:  req.ExtractAudio,
		AudioQuality:  req.AudioQuality,
		OutputDir:     dir,
	}, relay.handle)
	relay.close()
	if err != nil {
		if rmErr := w.library.Remove(key); rmErr != nil {
			logger.Warn("remove partial output failed", zap.String("key", key), zap.Error(rmErr))
		}
		return archive.ArtifactRecord{}, err
	}

	return archive.ArtifactRecord{
		Key:          key,
		PrettyName:   res.Title,
		RelativePath: w.library.Link(key, ""),
		InfoFile:     w.link(key, res.InfoFile),
		VideoFile:    w.link(key, res.VideoFile),
		AudioFile:    w.link(key, res.AudioFile),
		CreatedAt:    w.clock.Now(),
	}, nil
}

// newKey returns a fresh artifact key distinct from reqID.
func (w *Worker) newKey(reqID string) (string, error) {
	for range 3 {
		key, err := w.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("generate artifact key: %w", err)
		}
		if key != reqID {
			return key, nil
		}
	}
	return "", errors.New("generate artifact key: generator keeps returning the request id")
}

func (w *Worker) link(key, name string) string {
	if name == "" {
		return ""
	}
	return w.library.Link(key, name)
}

// relay turns engine callbacks into bridge events. Once closed it discards
// callbacks so nothing can follow the terminal event.
type relay struct {
	ctx    context.Context
	reqID  string
	events EventPublisher
	clock  archive.Clock
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newRelay(ctx context.Context, reqID string, events EventPublisher, clock archive.Clock, logger *zap.Logger) *relay {
	return &relay{ctx: ctx, reqID: reqID, events: events, clock: clock, logger: logger}
}

func (r *relay) handle(u engine.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Debug("discarding late progress", zap.String("filename", u.Filename))
		return
	}
	name := filepath.Base(u.Filename)
	var evt progress.Event
	if u.Finished {
		evt = progress.Downloaded{ReqID: r.reqID, Filename: name, At: r.clock.Now()}
	} else {
		evt = progress.Downloading{
			ReqID:           r.reqID,
			Filename:        name,
			DownloadedBytes: u.DownloadedBytes,
			TotalBytes:      u.TotalBytes,
			TotalKnown:      u.TotalKnown,
			At:              r.clock.Now(),
		}
	}
	if err := r.events.Publish(r.ctx, evt); err != nil {
		r.logger.Debug("progress not published", zap.String("filename", name), zap.Error(err))
	}
}

func (r *relay) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
