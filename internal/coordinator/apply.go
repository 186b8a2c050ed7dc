package coordinator

import (
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/progress"
)

func (c *Coordinator) apply(evt progress.Event) {
	switch e := evt.(type) {
	case progress.Submitted:
		if err := c.jobs.Register(e.Request); err != nil {
			c.logger.Warn("ignoring duplicate submission", zap.String("req_id", e.Request.ID), zap.Error(err))
			return
		}
		c.emit(e)
	case progress.Downloading:
		fp, err := c.jobs.Progress(e.ReqID, e.Filename, e.DownloadedBytes, e.TotalBytes, e.TotalKnown)
		if err != nil {
			c.unknownJob(e, err)
			return
		}
		c.publish(progress.Downloading{
			ReqID:           e.ReqID,
			Filename:        fp.Filename,
			DownloadedBytes: fp.DownloadedBytes,
			TotalBytes:      fp.TotalBytes,
			TotalKnown:      fp.TotalKnown,
			At:              e.At,
		})
	case progress.Downloaded:
		if _, err := c.jobs.Downloaded(e.ReqID, e.Filename); err != nil {
			c.unknownJob(e, err)
			return
		}
		c.publish(e)
	case progress.Completed:
		if _, err := c.jobs.Finish(e.ReqID); err != nil {
			c.unknownJob(e, err)
			return
		}
		if err := c.artifacts.Add(e.Artifact); err != nil {
			c.logger.Error("artifact rejected", zap.String("req_id", e.ReqID), zap.String("key", e.Artifact.Key), zap.Error(err))
			c.publish(progress.Failed{ReqID: e.ReqID, Msg: "could not register artifact", At: e.At})
			return
		}
		c.publish(e)
	case progress.Failed:
		if _, err := c.jobs.Finish(e.ReqID); err != nil {
			c.unknownJob(e, err)
			return
		}
		c.publish(e)
	case progress.Deleted:
		// Deletions originate from Delete, never from workers.
		c.logger.Warn("ignoring deletion event from bridge", zap.String("key", e.Key))
	default:
		c.logger.Error("unknown event type", zap.String("kind", string(evt.Kind())))
	}
}

func (c *Coordinator) unknownJob(evt progress.Event, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		c.logger.Warn("dropping event for unknown job",
			zap.String("req_id", evt.RequestID()),
			zap.String("status", string(evt.Kind())))
		return
	}
	c.logger.Error("apply event failed", zap.String("req_id", evt.RequestID()), zap.Error(err))
}

// publish broadcasts evt to observers and hands it to the side sinks.
func (c *Coordinator) publish(evt progress.Event) {
	data, err := progress.Encode(evt)
	if err != nil {
		c.logger.Error("encode event failed", zap.String("status", string(evt.Kind())), zap.Error(err))
		return
	}
	c.observers.Broadcast(data)
	c.emit(evt)
}

func (c *Coordinator) emit(evt progress.Event) {
	if c.sinks != nil {
		c.sinks.Emit(evt)
	}
}
