// Package pool runs jobs on a fixed number of workers draining a bounded
// FIFO queue. Every submitted job is represented by a Future.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrPanic is wrapped by the error of a job that panicked.
var ErrPanic = errors.New("pool: job panicked")

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("pool: closed")

type task struct {
	run   func(ctx context.Context)
	abort func(err error)
}

// Pool is a fixed-size worker pool.
type Pool struct {
	ctx      context.Context
	queue    chan task
	group    errgroup.Group
	logger   *slog.Logger
	replaced atomic.Int64

	mu     sync.RWMutex
	closed bool
}

type config struct {
	workers   int
	queueSize int
	logger    *slog.Logger
}

// Option configures a Pool.
type Option func(*config)

// WithWorkers sets the number of workers. Values < 1 use runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithQueueSize sets how many jobs may wait for a worker before Submit blocks.
func WithQueueSize(n int) Option {
	return func(c *config) {
		c.queueSize = n
	}
}

// WithLogger sets the logger used to report replaced workers.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New starts a pool. Cancelling ctx stops queued jobs from starting; jobs
// already running finish normally.
func New(ctx context.Context, opts ...Option) *Pool {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.NumCPU()
	}
	if cfg.queueSize < 0 {
		cfg.queueSize = 0
	}
	if cfg.queueSize == 0 {
		cfg.queueSize = 4 * cfg.workers
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	p := &Pool{
		ctx:    ctx,
		queue:  make(chan task, cfg.queueSize),
		logger: cfg.logger,
	}
	for range cfg.workers {
		p.group.Go(p.work)
	}
	return p
}

func (p *Pool) work() error {
	for t := range p.queue {
		if err := p.ctx.Err(); err != nil {
			t.abort(err)
			continue
		}
		if p.run(t) {
			// The panicking worker retires; a fresh one takes its place.
			p.replaced.Add(1)
			p.logger.Warn("pool worker replaced after panic")
			p.group.Go(p.work)
			return nil
		}
	}
	return nil
}

func (p *Pool) run(t task) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			t.abort(fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	t.run(p.ctx)
	return false
}

// Replaced returns how many workers were replaced after a panic.
func (p *Pool) Replaced() int64 {
	return p.replaced.Load()
}

// Close stops accepting jobs and waits for queued jobs to finish or abort.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	return p.group.Wait()
}

// Submit queues fn and returns its future. It blocks while the queue is full
// and fails once ctx or the pool's context is done.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	f := newFuture[T]()
	t := task{
		run: func(ctx context.Context) {
			v, err := fn(ctx)
			f.resolve(v, err)
		},
		abort: func(err error) {
			var zero T
			f.resolve(zero, err)
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	if err := p.ctx.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case p.queue <- t:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, p.ctx.Err()
	}
}
