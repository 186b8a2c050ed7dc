package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/broadcast"
	"github.com/JakeFAU/media-archiver/internal/progress"
)

// Connect sends obs the CONNECTED snapshot and adds it to the observer set in
// one loop step, so the snapshot precedes every later event.
func (c *Coordinator) Connect(ctx context.Context, obs broadcast.Observer) error {
	var result error
	err := c.exec(ctx, func() {
		data, err := progress.EncodeSnapshot(c.artifacts.Snapshot())
		if err != nil {
			result = err
			return
		}
		if err := obs.Send(data); err != nil {
			result = fmt.Errorf("send snapshot: %w", err)
			return
		}
		c.observers.Add(obs)
		c.logger.Debug("observer connected", zap.String("observer", obs.ID()), zap.Int("observers", c.observers.Len()))
	})
	if err != nil {
		return err
	}
	return result
}

// Disconnect removes the observer with id. Unknown ids are ignored.
func (c *Coordinator) Disconnect(ctx context.Context, id string) error {
	return c.exec(ctx, func() {
		if c.observers.Remove(id) {
			c.logger.Debug("observer disconnected", zap.String("observer", id), zap.Int("observers", c.observers.Len()))
		}
	})
}

// Delete removes the artifact's files and record and broadcasts DELETED.
// An unknown key returns archive.ErrNotFound and broadcasts nothing.
func (c *Coordinator) Delete(ctx context.Context, key string) error {
	var result error
	err := c.exec(ctx, func() {
		if _, ok := c.artifacts.Get(key); !ok {
			result = fmt.Errorf("artifact %s: %w", key, archive.ErrNotFound)
			return
		}
		if err := c.files.Remove(key); err != nil {
			result = fmt.Errorf("delete artifact files: %w", err)
			return
		}
		if _, err := c.artifacts.Remove(key); err != nil {
			result = err
			return
		}
		c.publish(progress.Deleted{Key: key, At: c.clock.Now()})
	})
	if err != nil {
		return err
	}
	return result
}

// Snapshot returns the current artifact listing.
func (c *Coordinator) Snapshot(ctx context.Context) ([]archive.ArtifactRecord, error) {
	var out []archive.ArtifactRecord
	if err := c.exec(ctx, func() { out = c.artifacts.Snapshot() }); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats is a point-in-time view of loop-owned counters.
type Stats struct {
	JobsInFlight int
	Artifacts    int
	Observers    int
}

// Stats reports current counts.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := c.exec(ctx, func() {
		st = Stats{JobsInFlight: c.jobs.Len(), Artifacts: c.artifacts.Len(), Observers: c.observers.Len()}
	})
	return st, err
}
