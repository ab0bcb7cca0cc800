// Package writer provides an asynchronous worker pool that applies
// conversation saves and deletes to a storage.Driver off the engine's owner
// loop.
//
// Writes for one conversation id are serialized: a job for an id never starts
// while another job for that id is running. Jobs queued for an id before it
// gets a worker are coalesced so only the latest state is written.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/storage"
)

var (
	defaultNumWorkers  uint = 2
	defaultResultQueue uint = 64
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("writer pool closed")

// Op is the kind of storage operation a job performs.
type Op int

const (
	OpSave Op = iota + 1
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Job is a unit of work for the pool.
type Job struct {
	Op Op

	// ID is the conversation id; it is the serialization key.
	ID string

	// Conversation is the state to save. The pool owns it once enqueued,
	// so callers must pass a copy they no longer mutate.
	Conversation *conversation.Conversation

	// Revision is an opaque caller counter echoed back in the Result so the
	// caller can tell which state reached storage.
	Revision uint64
}

// Result reports the outcome of one executed job. Coalesced jobs that were
// superseded before running produce no Result.
type Result struct {
	Op       Op
	ID       string
	Revision uint64
	Err      error
}

// Config is the configuration options for the writer pool.
type Config struct {
	// Driver is the storage backend the jobs are applied to.
	Driver storage.Driver

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// ResultQueue is the capacity of the Results channel (defaults to 64).
	ResultQueue uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously.
type Pool struct {
	config *Config
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	ready    []string
	pending  map[string]Job
	inflight map[string]bool
	closed   bool

	// closeErrs collects failures of jobs finishing after Close started,
	// since nobody reads Results any more at that point.
	closeErrs []error

	results chan Result
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("writer pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.ResultQueue == 0 {
		c.ResultQueue = defaultResultQueue
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config:   c,
		logger:   logger.OrNop(c.Logger).With("component", "writer"),
		pending:  make(map[string]Job),
		inflight: make(map[string]bool),
		results:  make(chan Result, c.ResultQueue),
		stop:     make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Results delivers the outcome of every executed job. It is never closed;
// stop reading once Close has been called.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Enqueue schedules job. If a job for the same id is already waiting it is
// replaced, so intermediate states are never written.
func (p *Pool) Enqueue(job Job) error {
	if job.ID == "" {
		return errors.New("job has no conversation id")
	}
	if job.Op == OpSave && job.Conversation == nil {
		return errors.New("save job has no conversation")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	_, waiting := p.pending[job.ID]
	p.pending[job.ID] = job

	switch {
	case waiting:
		p.logger.Debug("job coalesced", "op", job.Op, "id", job.ID, "revision", job.Revision)
	case p.inflight[job.ID]:
		p.logger.Debug("job queued behind in-flight write", "op", job.Op, "id", job.ID, "revision", job.Revision)
	default:
		p.ready = append(p.ready, job.ID)
		p.cond.Signal()
		p.logger.Debug("job queued", "op", job.Op, "id", job.ID, "revision", job.Revision)
	}
	return nil
}

// Close stops accepting jobs and waits for every queued job to be written.
// It returns the failures of jobs that finished while closing, or ctx's
// error if the drain does not finish in time.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stop)
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("draining writer pool: %w", ctx.Err())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.closeErrs...)
}

// worker is the inner worker thread that continuously pulls ready ids off
// the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for {
		job, ok := p.next()
		if !ok {
			break
		}
		p.finish(job, p.process(job))
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// next blocks until a job is ready, or returns false once the pool is closed
// and nothing is left to do.
func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.ready) == 0 {
		if p.closed {
			return Job{}, false
		}
		p.cond.Wait()
	}

	id := p.ready[0]
	p.ready = p.ready[1:]

	job := p.pending[id]
	delete(p.pending, id)
	p.inflight[id] = true
	return job, true
}

func (p *Pool) process(job Job) error {
	ctx := context.Background()

	switch job.Op {
	case OpSave:
		return p.config.Driver.Save(ctx, job.Conversation)
	case OpDelete:
		err := p.config.Driver.Delete(ctx, job.ID)
		if storage.IsNotFound(err) {
			// Never saved, nothing to remove.
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown job op %v", job.Op)
	}
}

func (p *Pool) finish(job Job, err error) {
	if err != nil {
		p.logger.Error("storage write failed",
			"op", job.Op,
			"id", job.ID,
			"revision", job.Revision,
			"error", err,
		)
	} else {
		p.logger.Debug("storage write done",
			"op", job.Op,
			"id", job.ID,
			"revision", job.Revision,
		)
	}

	p.mu.Lock()
	delete(p.inflight, job.ID)
	if _, again := p.pending[job.ID]; again {
		p.ready = append(p.ready, job.ID)
		p.cond.Signal()
	}
	closing := p.closed
	if closing && err != nil {
		p.closeErrs = append(p.closeErrs, fmt.Errorf("%s %s: %w", job.Op, job.ID, err))
	}
	p.mu.Unlock()

	result := Result{Op: job.Op, ID: job.ID, Revision: job.Revision, Err: err}
	select {
	case p.results <- result:
	case <-p.stop:
	}
}
