// Package eventbus delivers published events to topic subscribers through a
// bounded worker pool. With a single worker, delivery order matches publish
// order.
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Topic names a stream of events.
type Topic string

// Topics published by the memory backend.
const (
	TopicState  Topic = "state"
	TopicObject Topic = "object"
)

// Default configuration
const (
	DefaultWorkerCount = 1
	DefaultQueueSize   = 1024
)

// Event is one published message.
type Event struct {
	Topic Topic
	Data  any
}

// Handler handles events of one topic.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

type work struct {
	event   Event
	handler Handler
}

// Bus routes events to subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]subscription
	nextID   uint64
	closed   bool

	workQueue chan work
	wg        sync.WaitGroup

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bus with one worker, which keeps events ordered.
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a bus with a custom worker count and queue size.
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		handlers:  make(map[Topic][]subscription),
		workQueue: make(chan work, queueSize),
		closing:   make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("topic", string(w.event.Topic)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers handler for topic. The returned function removes it
// and may be called more than once.
func (b *Bus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[topic]
	for i, s := range subs {
		if s.id == id {
			// copy so in-flight Publish calls keep a consistent slice
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.handlers[topic] = append(next, subs[i+1:]...)
			return
		}
	}
}

// Publish queues event for every subscriber of its topic. It never blocks:
// when the queue is full or the bus is closing the event is dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		log.Warn().Str("topic", string(event.Topic)).Msg("Event bus closing, dropping event")
		return
	}

	for _, s := range b.handlers[event.Topic] {
		select {
		case b.workQueue <- work{event: event, handler: s.handler}:
		default:
			log.Warn().
				Str("topic", string(event.Topic)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

// Close stops accepting events, lets the workers drain the queue and waits
// for them until ctx is done.
func (b *Bus) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		close(b.closing)
		b.mu.Lock()
		b.closed = true
		close(b.workQueue)
		b.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Closing is closed once Close has been called.
func (b *Bus) Closing() <-chan struct{} {
	return b.closing
}
