// Package eventloop provides a single-goroutine work queue. Everything queued
// on one Loop runs sequentially on the goroutine executing Run, so state owned
// by the loop needs no locking.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when work is submitted to a closed loop.
var ErrClosed = errors.New("event loop closed")

// DefaultQueueSize is used when NewLoop is given a non-positive size.
const DefaultQueueSize = 256

// Work is a unit of work executed on the loop goroutine.
type Work func(ctx context.Context)

// Loop executes queued work one item at a time.
type Loop struct {
	name  string
	queue chan Work

	// closing is closed once; selecting on it is race-free for senders.
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewLoop creates a loop with the given queue capacity.
func NewLoop(name string, queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		name:    name,
		queue:   make(chan Work, queueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Do queues work without blocking. It returns false when the loop is closing
// or the queue is full.
func (l *Loop) Do(work Work) bool {
	select {
	case <-l.closing:
		log.Debug().Str("loop", l.name).Msg("Loop closing, dropping work")
		return false
	default:
	}

	select {
	case l.queue <- work:
		return true
	default:
		log.Warn().Str("loop", l.name).Msg("Loop queue full, dropping work")
		return false
	}
}

// DoSync queues work, blocking until there is room in the queue.
func (l *Loop) DoSync(ctx context.Context, work Work) error {
	select {
	case <-l.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.queue <- work:
		return nil
	}
}

// Call queues fn and waits for it to finish on the loop, returning its error.
func (l *Loop) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	if err := l.DoSync(ctx, func(c context.Context) {
		result <- fn(c)
	}); err != nil {
		return err
	}

	select {
	case <-l.done:
		// Run may have drained our work before exiting.
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Run executes queued work until ctx is cancelled or Close is called.
// Work still queued at that point is drained before Run returns.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.drain(ctx)
			return
		case <-l.closing:
			l.drain(ctx)
			return
		case work := <-l.queue:
			l.execute(ctx, work)
		}
	}
}

// Done is closed after Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close stops accepting work. It is safe to call more than once.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.closing)
	})
}

func (l *Loop) drain(ctx context.Context) {
	for {
		select {
		case work := <-l.queue:
			l.execute(ctx, work)
		default:
			return
		}
	}
}

func (l *Loop) execute(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("loop", l.name).
				Msg("Loop work panicked, continuing")
		}
	}()
	work(ctx)
}
