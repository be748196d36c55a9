package desk

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/patronlib/librarystack/pkg/librarian"
)

// Desk is the Circulation Desk: a single-consumer, unbounded FIFO job
// queue fed by Enqueue and drained by one worker goroutine. Jobs are
// processed strictly in order; a job that errors is logged and
// discarded, never crashing the worker.
//
// The queue is deliberately a mutex+condition-variable-guarded slice
// rather than a buffered channel: the queue has no size cap, which a
// channel's fixed buffer cannot express without either blocking the
// producer or dropping jobs.
type Desk struct {
	cfg       Config
	lib       *librarian.Librarian
	registry  *librarian.Registry
	callbacks Callbacks
	logger    *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Job
	disposed bool
	draining bool

	workerDone chan struct{}
}

const queueDepthWarnThreshold = 256

// New constructs a Desk and starts its worker goroutine. lib is the
// default librarian used for job handling; registry may be nil if no
// specialist spawning is configured.
func New(cfg Config, lib *librarian.Librarian, registry *librarian.Registry, callbacks Callbacks, logger *slog.Logger) *Desk {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Desk{
		cfg:        cfg,
		lib:        lib,
		registry:   registry,
		callbacks:  callbacks,
		logger:     logger,
		workerDone: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Enqueue appends job to the tail of the queue. A no-op once the desk
// has been disposed or is draining toward disposal.
func (d *Desk) Enqueue(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed || d.draining {
		d.logger.Warn("desk: enqueue rejected, desk is disposed or draining", slog.String("kind", string(job.Kind)))
		return
	}
	if job.EnqueuedAtMs == 0 {
		job.EnqueuedAtMs = nowMs()
	}
	d.queue = append(d.queue, job)
	if depth := len(d.queue); depth > queueDepthWarnThreshold {
		d.logger.Warn("desk: queue depth exceeds warn threshold", slog.Int("depth", depth))
	}
	d.cond.Signal()
}

// run is the single worker loop: pop one job, process it, repeat. Exits
// once the desk is disposed and the queue has drained.
func (d *Desk) run() {
	defer close(d.workerDone)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.disposed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.disposed {
			d.mu.Unlock()
			return
		}
		job := d.queue[0]
		d.queue = d.queue[1:]
		d.cond.Broadcast()
		d.mu.Unlock()

		d.process(job)
	}
}

// process dispatches job to its handler, logging and swallowing any
// error: a failed job never crashes the desk.
func (d *Desk) process(job Job) {
	ctx := context.Background()
	var err error
	switch job.Kind {
	case KindExtraction:
		err = d.handleExtraction(ctx, job)
	case KindCompendium:
		err = d.handleCompendium(ctx, job)
	case KindOptimization:
		err = d.handleOptimization(ctx, job)
	case KindReorganization:
		err = d.handleReorganization(ctx, job)
	default:
		d.logger.Warn("desk: unknown job kind", slog.String("kind", string(job.Kind)))
		return
	}
	if err != nil {
		d.logger.Error("desk: job failed", slog.String("kind", string(job.Kind)), slog.String("topic", job.Topic), slog.Any("error", err))
	}
}

// Flush discards every job still waiting in the queue without awaiting
// whatever job is currently in flight.
func (d *Desk) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = nil
}

// Drain blocks until the queue is empty, or ctx is canceled first.
// Unlike Dispose, the desk remains usable afterward. Does not itself
// guarantee the last-popped job has finished processing; callers that
// need that should poll QueueDepth after a short grace period.
func (d *Desk) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.mu.Lock()
		defer d.mu.Unlock()
		for len(d.queue) > 0 {
			d.cond.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose refuses further enqueues, discards pending jobs, and waits for
// the in-flight job (if any) plus worker exit, or ctx's deadline,
// whichever comes first.
func (d *Desk) Dispose(ctx context.Context) error {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return nil
	}
	d.draining = true
	d.queue = nil
	d.disposed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	select {
	case <-d.workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth reports the number of jobs currently waiting (excludes any
// job in flight).
func (d *Desk) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
