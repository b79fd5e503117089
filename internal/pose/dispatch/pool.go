// Package dispatch bounds concurrent calls to the external pose detector.
//
// The pool's active count, queue, and dispatch watermark are the only state
// mutated across goroutines; all mutation happens under one mutex at the two
// well-defined boundaries (submit, dispatch-complete). Requests dispatch in
// strict FIFO arrival order once capacity frees, and a minimum inter-dispatch
// interval spaces bursts so the detector transport is never slammed even when
// slots are free.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/monitoring"
	"github.com/ridelens/trickline/internal/pose"
)

var (
	// ErrQueueFull rejects a submission when both the active slots and the
	// queue are at capacity. Retryable: capacity frees as dispatches finish.
	ErrQueueFull = errors.New("dispatch: queue full")

	// ErrPoolClosed rejects submissions made after shutdown began, and
	// resolves any requests still queued when it did.
	ErrPoolClosed = errors.New("dispatch: pool shut down")
)

// Detector is the per-call wrapper around the external pose service. Any
// failure, including the wrapper's own timeout, is reported inside the
// returned RawFrame's Error field, never as a pool-level fault.
type Detector interface {
	DetectFrame(ctx context.Context, frame pose.FrameImage) pose.RawFrame
}

// Config holds the pool's capacity and pacing parameters.
type Config struct {
	MaxConcurrent       int
	MaxQueue            int
	MinDispatchInterval time.Duration
	ShutdownTimeout     time.Duration
}

// ConfigFromTuning builds a pool Config from the loaded tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxConcurrent:       cfg.GetMaxConcurrent(),
		MaxQueue:            cfg.GetMaxQueue(),
		MinDispatchInterval: cfg.GetMinDispatchInterval(),
		ShutdownTimeout:     cfg.GetShutdownTimeout(),
	}
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// Status is a point-in-time snapshot of the pool for the monitoring layer.
type Status struct {
	ActiveProcesses int     `json:"activeProcesses"`
	QueuedRequests  int     `json:"queuedRequests"`
	TotalProcessed  int64   `json:"totalProcessed"`
	TotalErrors     int64   `json:"totalErrors"`
	UptimeSeconds   float64 `json:"uptime"`
}

// Handle is the completion handle for one submitted batch.
type Handle struct {
	ID string

	done   chan struct{}
	frames []pose.RawFrame
	err    error
}

// Done is closed when the batch has resolved, successfully or not.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the batch resolves or ctx is done. Per-frame detector
// failures are embedded in the returned frames; the error return is reserved
// for pool-level rejection (shutdown).
func (h *Handle) Wait(ctx context.Context) ([]pose.RawFrame, error) {
	select {
	case <-h.done:
		return h.frames, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) complete(frames []pose.RawFrame, err error) {
	h.frames = frames
	h.err = err
	close(h.done)
}

type request struct {
	handle *Handle
	images []pose.FrameImage
}

// Pool dispatches detection batches under a strict concurrency cap. Pools
// share no state; hosts wanting one pool per detector class construct several.
type Pool struct {
	cfg      Config
	detector Detector

	mu             sync.Mutex
	active         int
	queue          []*request
	closed         bool
	nextDispatch   time.Time // monotonic watermark for min-interval pacing
	totalProcessed int64
	totalErrors    int64

	started time.Time
	wg      sync.WaitGroup
}

// New constructs a pool with an explicit lifecycle: it accepts work until
// Shutdown is called.
func New(cfg Config, detector Detector) *Pool {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	}
	return &Pool{
		cfg:      cfg,
		detector: detector,
		started:  time.Now(),
	}
}

// Submit offers an ordered batch of frames. If a slot is free the batch
// dispatches immediately; otherwise it queues FIFO. A full queue rejects
// with ErrQueueFull and a closed pool with ErrPoolClosed.
func (p *Pool) Submit(images []pose.FrameImage) (*Handle, error) {
	req := &request{
		handle: &Handle{ID: uuid.NewString(), done: make(chan struct{})},
		images: images,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.active < p.cfg.MaxConcurrent {
		p.dispatchLocked(req)
		return req.handle, nil
	}
	if len(p.queue) < p.cfg.MaxQueue {
		p.queue = append(p.queue, req)
		return req.handle, nil
	}
	return nil, ErrQueueFull
}

// dispatchLocked claims a slot and the next dispatch time. The watermark is
// reserved under the lock so concurrent dispatches stay spaced by
// MinDispatchInterval even when slots are free. Caller holds p.mu.
func (p *Pool) dispatchLocked(req *request) {
	p.active++
	now := time.Now()
	notBefore := p.nextDispatch
	if notBefore.Before(now) {
		notBefore = now
	}
	p.nextDispatch = notBefore.Add(p.cfg.MinDispatchInterval)

	p.wg.Add(1)
	go p.run(req, notBefore)
}

func (p *Pool) run(req *request, notBefore time.Time) {
	defer p.wg.Done()

	if wait := time.Until(notBefore); wait > 0 {
		time.Sleep(wait)
	}

	frames := make([]pose.RawFrame, len(req.images))
	var frameErrors int64
	for i, img := range req.images {
		frames[i] = p.detector.DetectFrame(context.Background(), img)
		if frames[i].Error != "" {
			frameErrors++
		}
	}
	// Bookkeeping settles before the handle resolves, so a Status read after
	// Wait returns never sees a stale active count.
	p.mu.Lock()
	p.active--
	p.totalProcessed += int64(len(frames))
	p.totalErrors += frameErrors
	if !p.closed && len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.dispatchLocked(next)
	}
	p.mu.Unlock()

	req.handle.complete(frames, nil)
}

// Shutdown stops accepting submissions, rejects all queued-but-undispatched
// requests with ErrPoolClosed, then waits up to ShutdownTimeout for active
// dispatches to finish. Exceeding the timeout is logged; in-flight calls are
// never forcibly aborted.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, req := range pending {
		req.handle.complete(nil, ErrPoolClosed)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownTimeout):
		p.mu.Lock()
		stillActive := p.active
		p.mu.Unlock()
		monitoring.Logf("dispatch: shutdown timed out after %s with %d dispatches still in flight",
			p.cfg.ShutdownTimeout, stillActive)
	}
}

// Status reports the pool's current state.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		ActiveProcesses: p.active,
		QueuedRequests:  len(p.queue),
		TotalProcessed:  p.totalProcessed,
		TotalErrors:     p.totalErrors,
		UptimeSeconds:   time.Since(p.started).Seconds(),
	}
}
