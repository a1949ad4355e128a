// Package workpool provides a bounded worker pool used by the run scheduler
// to cap the number of in-flight probes. Submitted tasks are queued until a
// worker slot frees up, and every task gets a Future carrying its outcome.
package workpool

import (
	"context"
	"fmt"
	"sync"
)

// Task is a unit of work executed on a pool worker. The context is cancelled
// when the future is stopped or the pool closes.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the terminal result of a task.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Future receives exactly one Outcome for a submitted task.
type Future[T any] struct {
	c      chan Outcome[T]
	cancel context.CancelFunc
}

// C returns the channel on which the task's outcome is delivered.
func (f *Future[T]) C() <-chan Outcome[T] {
	return f.c
}

// Stop cancels the task's context. The outcome is still delivered.
func (f *Future[T]) Stop() {
	f.cancel()
}

type request[T any] struct {
	task Task[T]
	c    chan Outcome[T]
	ctx  context.Context
}

type queue[T any] []T

func (q *queue[T]) Len() int { return len(*q) }

func (q *queue[T]) Pop() T {
	old := *q
	x := old[0]
	*q = old[1:]
	return x
}

func (q *queue[T]) Push(t T) {
	*q = append(*q, t)
}

// Pool runs tasks on at most size workers. Excess submissions queue in FIFO
// order. The in-flight count is only touched by the run loop goroutine.
type Pool[T any] struct {
	size       int
	inFlight   int
	pending    *queue[request[T]]
	submit     chan request[T]
	finished   chan struct{}
	closing    chan struct{}
	done       chan struct{}
	mainCtx    context.Context
	mainCancel context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

// New creates a pool with the given number of worker slots. A size below one
// is treated as one.
func New[T any](size int) *Pool[T] {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		size:       size,
		pending:    &queue[request[T]]{},
		submit:     make(chan request[T]),
		finished:   make(chan struct{}, size),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	go p.run()
	return p
}

// Submit queues a task and returns its future. After Close, the future
// resolves immediately with context.Canceled.
func (p *Pool[T]) Submit(task Task[T]) *Future[T] {
	c := make(chan Outcome[T], 1)
	ctx, cancel := context.WithCancel(p.mainCtx)

	select {
	case <-p.mainCtx.Done():
		var zero T
		c <- Outcome[T]{Value: zero, Err: context.Canceled}
	case p.submit <- request[T]{task: task, c: c, ctx: ctx}:
	}

	return &Future[T]{c: c, cancel: cancel}
}

// Close cancels all task contexts, waits for in-flight tasks to return, and
// releases the run loop. Safe to call more than once.
func (p *Pool[T]) Close() {
	p.once.Do(func() {
		p.mainCancel()
		p.closing <- struct{}{}
		<-p.done
	})
}

func (p *Pool[T]) run() {
	defer close(p.done)
	for {
		select {
		case r := <-p.submit:
			p.pending.Push(r)
			p.dispatch()
		case <-p.finished:
			p.inFlight--
			p.dispatch()
		case <-p.closing:
			p.wg.Wait()
			return
		}
	}
}

// dispatch drains the pending queue as far as free worker slots allow.
func (p *Pool[T]) dispatch() {
	for p.inFlight < p.size && p.pending.Len() > 0 {
		r := p.pending.Pop()
		p.inFlight++
		p.wg.Add(1)
		go p.work(r)
	}
}

func (p *Pool[T]) work(r request[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			r.c <- Outcome[T]{Value: zero, Err: fmt.Errorf("worker panicked: %v", rec)}
		}
		p.finished <- struct{}{}
		p.wg.Done()
	}()

	v, err := r.task(r.ctx)
	r.c <- Outcome[T]{Value: v, Err: err}
}
