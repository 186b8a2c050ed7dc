// Package dispatcher starts one worker goroutine per accepted job.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// ErrStopped is returned by Dispatch after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, req archive.JobRequest)
}

// Dispatcher fans jobs out to goroutines. There is no concurrency cap.
type Dispatcher struct {
	processor Processor
	base      context.Context

	mu       sync.Mutex
	stopped  bool
	inFlight int
	wg       sync.WaitGroup
}

// New creates a Dispatcher whose jobs run under base. Cancelling base
// interrupts running retrievals.
func New(base context.Context, processor Processor) *Dispatcher {
	return &Dispatcher{processor: processor, base: base}
}

// Dispatch starts req in its own goroutine and returns immediately.
func (d *Dispatcher) Dispatch(req archive.JobRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return fmt.Errorf("dispatch %s: %w", req.ID, ErrStopped)
	}
	d.inFlight++
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.finish()
		d.processor.Process(d.base, req)
	}()
	return nil
}

func (d *Dispatcher) finish() {
	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
}

// InFlight reports the number of running jobs.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Stop rejects further Dispatch calls.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

// Wait stops the dispatcher and blocks until running jobs finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.Stop()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %d jobs: %w", d.InFlight(), ctx.Err())
	}
}
