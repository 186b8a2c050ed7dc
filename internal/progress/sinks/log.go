package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/progress"
)

// LogSink emits structured logs for every applied event. Byte progress is
// logged at debug to keep info output readable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("status", string(evt.Kind())),
			zap.Time("at", evt.Time()),
		}
		if id := evt.RequestID(); id != "" {
			fields = append(fields, zap.String("req_id", id))
		}
		switch e := evt.(type) {
		case progress.Submitted:
			fields = append(fields, zap.String("url", e.Request.URL),
				zap.Bool("video", e.Request.DownloadVideo),
				zap.Bool("audio", e.Request.ExtractAudio))
		case progress.Downloading:
			fields = append(fields, zap.String("filename", e.Filename),
				zap.Int64("downloaded_bytes", e.DownloadedBytes),
				zap.Int64("total_bytes", e.TotalBytes))
			s.logger.Debug("archiver event", fields...)
			continue
		case progress.Downloaded:
			fields = append(fields, zap.String("filename", e.Filename))
		case progress.Completed:
			fields = append(fields, zap.String("key", e.Artifact.Key),
				zap.String("pretty_name", e.Artifact.PrettyName))
		case progress.Failed:
			fields = append(fields, zap.String("msg", e.Msg))
			s.logger.Warn("archiver event", fields...)
			continue
		case progress.Deleted:
			fields = append(fields, zap.String("key", e.Key))
		}
		s.logger.Info("archiver event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
