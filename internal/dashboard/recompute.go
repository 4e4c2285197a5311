package dashboard

import (
	"context"
	"errors"
	"sync"

	"orderlens/internal/filter"
	"orderlens/internal/log"
	"orderlens/internal/storage"
)

// ErrNothingSubmitted is returned by Wait before the first Submit.
var ErrNothingSubmitted = errors.New("no recomputation submitted")

// ErrClosed is returned once the Recomputer has been closed.
var ErrClosed = errors.New("recomputer closed")

// Computer produces a snapshot. *Engine is the production implementation.
type Computer interface {
	Compute(ctx context.Context, ds storage.Dataset, spec filter.Spec, view View) (Snapshot, error)
}

// Request is the complete input of one recomputation.
type Request struct {
	Dataset storage.Dataset
	Spec    filter.Spec
	View    View
}

// Recomputer runs snapshot computations in the background. Every Submit
// starts a new generation and cancels the one before it. Only the result
// of the newest generation is ever published; results of superseded
// generations are dropped.
type Recomputer struct {
	engine Computer
	logger *log.Logger

	mu        sync.Mutex
	base      context.Context
	stop      context.CancelFunc
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	resultGen uint64
	result    Snapshot
	err       error
	closed    bool
	wg        sync.WaitGroup
}

func NewRecomputer(engine Computer, logger *log.Logger) *Recomputer {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	base, stop := context.WithCancel(context.Background())
	return &Recomputer{
		engine: engine,
		logger: logger.WithComponent(log.ComponentDashboard),
		base:   base,
		stop:   stop,
	}
}

// Submit schedules req and returns its generation.
func (r *Recomputer) Submit(req Request) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.gen
	}

	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	gen := r.gen
	ctx, cancel := context.WithCancel(r.base)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	r.wg.Add(1)
	go r.run(ctx, cancel, gen, done, req)
	return gen
}

func (r *Recomputer) run(ctx context.Context, cancel context.CancelFunc, gen uint64, done chan struct{}, req Request) {
	defer r.wg.Done()
	defer close(done)
	defer cancel()

	snap, err := r.engine.Compute(ctx, req.Dataset, req.Spec, req.View)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		r.logger.Debug("Discarding superseded snapshot", log.FieldGeneration, gen)
		return
	}
	snap.Generation = gen
	r.resultGen = gen
	r.result = snap
	r.err = err
}

// Latest returns the newest published snapshot without waiting. ok is false
// while the newest generation is still running or failed.
func (r *Recomputer) Latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen == 0 || r.resultGen != r.gen || r.err != nil {
		return Snapshot{}, false
	}
	return r.result, true
}

// Generation is the number of the most recent Submit.
func (r *Recomputer) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// Wait blocks until the newest generation has finished and returns its
// result. A Submit that arrives while waiting extends the wait to the new
// generation.
func (r *Recomputer) Wait(ctx context.Context) (Snapshot, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return Snapshot{}, ErrClosed
		}
		if r.gen == 0 {
			r.mu.Unlock()
			return Snapshot{}, ErrNothingSubmitted
		}
		if r.resultGen == r.gen {
			snap, err := r.result, r.err
			r.mu.Unlock()
			return snap, err
		}
		done := r.done
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-done:
		}
	}
}

// Close cancels any running computation and waits for it to return.
func (r *Recomputer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.stop()
	r.wg.Wait()
}
