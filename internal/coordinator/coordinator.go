// Package coordinator runs the single event loop that owns the job registry,
// the artifact store and the observer set. Worker events arrive over the
// progress bridge; requests from HTTP handlers arrive as commands. Both are
// applied one at a time, so every observer sees a consistent sequence.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/broadcast"
	"github.com/JakeFAU/media-archiver/internal/progress"
	"github.com/JakeFAU/media-archiver/internal/registry"
)

// ErrStopped is returned by commands issued after the loop has exited.
var ErrStopped = errors.New("event loop stopped")

// EventSource is the consumer side of the progress bridge.
type EventSource interface {
	Events() <-chan progress.Event
}

// ArtifactRemover deletes an artifact's files from disk. It runs on the loop
// goroutine, so it must return without waiting on a recursive delete.
type ArtifactRemover interface {
	Remove(key string) error
}

// Config wires the loop's collaborators.
type Config struct {
	Events    EventSource
	Observers *broadcast.Hub
	Files     ArtifactRemover
	// Sinks receives every applied event. Optional.
	Sinks progress.Emitter
	Clock archive.Clock
	// Initial seeds the artifact store before the loop starts.
	Initial []archive.ArtifactRecord
	Logger  *zap.Logger
}

// Coordinator is the event loop.
type Coordinator struct {
	events    EventSource
	jobs      *registry.Jobs
	artifacts *registry.Artifacts
	observers *broadcast.Hub
	files     ArtifactRemover
	sinks     progress.Emitter
	clock     archive.Clock
	logger    *zap.Logger

	cmds chan func()
	done chan struct{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New validates cfg and returns a Coordinator ready to Run.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Events == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if cfg.Files == nil {
		return nil, fmt.Errorf("artifact remover is required")
	}
	if cfg.Observers == nil {
		cfg.Observers = broadcast.NewHub()
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		events:    cfg.Events,
		jobs:      registry.NewJobs(),
		artifacts: registry.NewArtifacts(),
		observers: cfg.Observers,
		files:     cfg.Files,
		sinks:     cfg.Sinks,
		clock:     cfg.Clock,
		logger:    logger,
		cmds:      make(chan func()),
		done:      make(chan struct{}),
	}
	for _, rec := range cfg.Initial {
		if err := c.artifacts.Add(rec); err != nil {
			return nil, fmt.Errorf("seed artifact: %w", err)
		}
	}
	return c, nil
}

// Run applies events and commands until ctx is cancelled. Events already
// buffered in the bridge are applied before it returns, then every observer
// is closed.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	events := c.events.Events()
	for {
		select {
		case evt := <-events:
			c.apply(evt)
		case cmd := <-c.cmds:
			cmd()
		case <-ctx.Done():
			c.drain(events)
			c.observers.CloseAll()
			c.logger.Info("event loop stopped",
				zap.Int("jobs_in_flight", c.jobs.Len()),
				zap.Int("artifacts", c.artifacts.Len()))
			return
		}
	}
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) drain(events <-chan progress.Event) {
	for {
		select {
		case evt := <-events:
			c.apply(evt)
		default:
			return
		}
	}
}

// exec runs fn on the loop goroutine and waits for it.
func (c *Coordinator) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.cmds <- wrapped:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("enqueue command: %w", ctx.Err())
	}
	<-finished
	return nil
}
