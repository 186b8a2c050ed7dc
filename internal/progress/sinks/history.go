package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/progress"
	"github.com/JakeFAU/media-archiver/internal/store"
)

// HistorySink writes the job audit trail through a store.HistoryRepository.
// Byte progress is folded in memory and written once per job when it ends.
type HistorySink struct {
	repo    store.HistoryRepository
	logger  *zap.Logger
	tracker *jobTracker
}

// NewHistorySink constructs a HistorySink for the provided repository.
func NewHistorySink(repo store.HistoryRepository, logger *zap.Logger) *HistorySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistorySink{repo: repo, logger: logger, tracker: newJobTracker()}
}

// Consume persists job starts, terminal results and artifact deletions. A
// failing write does not stop the rest of the batch; all errors are joined.
func (s *HistorySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *HistorySink) apply(ctx context.Context, evt progress.Event) error {
	switch e := evt.(type) {
	case progress.Submitted:
		s.tracker.start(e.Request.ID, e.At)
		if err := s.repo.RecordSubmitted(ctx, e.Request); err != nil {
			return fmt.Errorf("record submitted: %w", err)
		}
	case progress.Downloading:
		s.tracker.observe(e.ReqID, e.Filename, e.DownloadedBytes)
	case progress.Completed:
		key := e.Artifact.Key
		return s.finish(ctx, e.ReqID, store.RunResult{
			Status:      store.RunSuccess,
			FinishedAt:  e.At,
			ArtifactKey: &key,
		})
	case progress.Failed:
		msg := e.Msg
		return s.finish(ctx, e.ReqID, store.RunResult{
			Status:       store.RunError,
			FinishedAt:   e.At,
			ErrorMessage: &msg,
		})
	case progress.Deleted:
		if err := s.repo.RecordArtifactDeleted(ctx, e.Key, e.At); err != nil {
			return fmt.Errorf("record deleted: %w", err)
		}
	}
	return nil
}

func (s *HistorySink) finish(ctx context.Context, reqID string, result store.RunResult) error {
	sum := s.tracker.finish(reqID)
	result.ReqID = reqID
	result.BytesDownloaded = sum.bytes
	result.Files = sum.files
	if err := s.repo.RecordFinished(ctx, result); err != nil {
		return fmt.Errorf("record finished: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *HistorySink) Close(context.Context) error {
	return nil
}
