package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ent0n29/livetranslator/internal/registry"
)

const DefaultQueueSize = 16

// SpeechQueue runs Route for one connection's speech events in arrival order
// on its own goroutine, so the receive loop never waits on translation.
type SpeechQueue struct {
	router *Router
	source registry.Handle
	ctx    context.Context

	mu     sync.Mutex
	closed bool
	items  chan string
	done   chan struct{}
}

// NewQueue starts a worker that routes speech from source. ctx bounds every
// Route call made by the worker.
func (r *Router) NewQueue(ctx context.Context, source registry.Handle, size int) *SpeechQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &SpeechQueue{
		router: r,
		source: source,
		ctx:    ctx,
		items:  make(chan string, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SpeechQueue) run() {
	defer close(q.done)
	for text := range q.items {
		q.router.Route(q.ctx, q.source, text)
	}
}

// Enqueue schedules text without blocking. It reports false when the queue is
// full or closed; the event is dropped in that case. Translation failures
// never drop an event, only a backlog deeper than the queue does.
func (q *SpeechQueue) Enqueue(text string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.items <- text:
		return true
	default:
		q.router.metrics.DropFrame("queue_full")
		q.router.log.Warn("speech queue full", zap.String("handle", string(q.source)))
		return false
	}
}

// Close stops accepting events. Already queued events still run; Close does
// not wait for them.
func (q *SpeechQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

// Done is closed once the worker has drained the queue after Close.
func (q *SpeechQueue) Done() <-chan struct{} { return q.done }
