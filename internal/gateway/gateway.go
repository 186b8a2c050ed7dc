// Package gateway accepts job submissions and artifact deletions.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/progress"
)

// SubmitRequest is a user submission. AudioQuality is optional.
type SubmitRequest struct {
	URL           string
	DownloadVideo bool
	ExtractAudio  bool
	AudioQuality  *int
}

// EventPublisher accepts events for the coordinator.
type EventPublisher interface {
	Publish(ctx context.Context, evt progress.Event) error
}

// Dispatcher starts a job in the background.
type Dispatcher interface {
	Dispatch(req archive.JobRequest) error
}

// Deleter removes artifacts through the coordinator.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Config tunes the gateway.
type Config struct {
	// DefaultAudioQuality applies when a submission omits audio_quality.
	DefaultAudioQuality int
}

// Gateway validates and routes user intents.
type Gateway struct {
	events     EventPublisher
	dispatcher Dispatcher
	deleter    Deleter
	ids        archive.IDGenerator
	clock      archive.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Gateway.
func New(
	events EventPublisher,
	dispatcher Dispatcher,
	deleter Deleter,
	ids archive.IDGenerator,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) *Gateway {
	if cfg.DefaultAudioQuality == 0 {
		cfg.DefaultAudioQuality = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		events:     events,
		dispatcher: dispatcher,
		deleter:    deleter,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Submit validates sub, registers the job and starts it. It returns the new
// req_id without waiting for the retrieval.
func (g *Gateway) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	req, err := g.buildRequest(sub)
	if err != nil {
		return "", err
	}
	// Submitted goes through the bridge before any worker event can.
	if err := g.events.Publish(ctx, progress.Submitted{Request: req, At: req.SubmittedAt}); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}
	if err := g.dispatcher.Dispatch(req); err != nil {
		g.reportDispatchFailure(ctx, req, err)
		return "", fmt.Errorf("start job: %w", err)
	}
	g.logger.Info("job accepted",
		zap.String("req_id", req.ID),
		zap.String("url", req.URL),
		zap.Bool("download_video", req.DownloadVideo),
		zap.Bool("extract_audio", req.ExtractAudio),
		zap.Int("audio_quality", req.AudioQuality))
	return req.ID, nil
}

// reportDispatchFailure unregisters a job that never started.
func (g *Gateway) reportDispatchFailure(ctx context.Context, req archive.JobRequest, cause error) {
	evt := progress.Failed{ReqID: req.ID, Msg: cause.Error(), At: g.clock.Now()}
	if err := g.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		g.logger.Warn("could not report dispatch failure", zap.String("req_id", req.ID), zap.Error(err))
	}
}

func (g *Gateway) buildRequest(sub SubmitRequest) (archive.JobRequest, error) {
	raw := strings.TrimSpace(sub.URL)
	if raw == "" {
		return archive.JobRequest{}, archive.NewValidationError("url", "must not be blank")
	}
	if !sub.DownloadVideo && !sub.ExtractAudio {
		return archive.JobRequest{}, archive.NewValidationError("download_video", "or extract_audio must be true")
	}
	quality := g.cfg.DefaultAudioQuality
	if sub.AudioQuality != nil {
		quality = *sub.AudioQuality
	}
	if quality < archive.MinAudioQuality || quality > archive.MaxAudioQuality {
		return archive.JobRequest{}, archive.NewValidationError("audio_quality",
			fmt.Sprintf("must be between %d and %d", archive.MinAudioQuality, archive.MaxAudioQuality))
	}
	id, err := g.ids.NewID()
	if err != nil {
		return archive.JobRequest{}, fmt.Errorf("generate req_id: %w", err)
	}
	return archive.JobRequest{
		ID:            id,
		URL:           raw,
		DownloadVideo: sub.DownloadVideo,
		ExtractAudio:  sub.ExtractAudio,
		AudioQuality:  quality,
		SubmittedAt:   g.clock.Now(),
	}, nil
}

// Delete removes the artifact with key. Unknown keys yield archive.ErrNotFound.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return archive.NewValidationError("key", "must not be blank")
	}
	if err := g.deleter.Delete(ctx, key); err != nil {
		if !errors.Is(err, archive.ErrNotFound) {
			g.logger.Error("delete failed", zap.String("key", key), zap.Error(err))
		}
		return err
	}
	g.logger.Info("artifact deleted", zap.String("key", key))
	return nil
}
