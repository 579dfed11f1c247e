package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool closed")
)

// TaskFunc is the unit of work executed by the pool.
type TaskFunc func(ctx context.Context) error

// Task is a handle to submitted work.
type Task struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed once the task has finished or was cancelled before running.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task result. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the task context. A queued task will not run.
func (t *Task) Cancel() {
	t.cancel()
}

// SubmitOption tunes a single submission.
type SubmitOption func(*job)

// WithCompletion registers fn to run with the task result.
func WithCompletion(fn func(error)) SubmitOption {
	return func(j *job) { j.onDone = fn }
}

// WithTimeout bounds the task's execution.
func WithTimeout(d time.Duration) SubmitOption {
	return func(j *job) { j.timeout = d }
}

type job struct {
	task    *Task
	fn      TaskFunc
	onDone  func(error)
	timeout time.Duration
}

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	queue  chan *job
	wg     sync.WaitGroup
	base   context.Context
	stop   context.CancelFunc
	logger *zap.Logger
}

// NewPool starts workers goroutines with room for queueSize pending tasks.
func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base, stop := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan *job, queueSize),
		base:   base,
		stop:   stop,
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

// Submit enqueues fn without blocking. It fails with ErrQueueFull when the
// queue has no room and ErrPoolClosed after Shutdown.
func (p *Pool) Submit(fn TaskFunc, opts ...SubmitOption) (*Task, error) {
	ctx, cancel := context.WithCancel(p.base)
	j := &job{
		task: &Task{ctx: ctx, cancel: cancel, done: make(chan struct{})},
		fn:   fn,
	}
	for _, opt := range opts {
		opt(j)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		cancel()
		return nil, ErrPoolClosed
	}
	select {
	case p.queue <- j:
		return j.task, nil
	default:
		cancel()
		return nil, ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued tasks to drain. When ctx
// expires first, running tasks are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.stop()
		return nil
	case <-ctx.Done():
		p.stop()
		<-drained
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(j)
	}
}

func (p *Pool) run(j *job) {
	t := j.task
	defer t.cancel()

	if err := t.ctx.Err(); err != nil {
		t.err = err
	} else {
		ctx := t.ctx
		if j.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.timeout)
			defer cancel()
		}
		t.err = p.invoke(ctx, j.fn)
	}
	close(t.done)

	if j.onDone != nil {
		j.onDone(t.err)
	}
}

func (p *Pool) invoke(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked", zap.Any("panic", r))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
