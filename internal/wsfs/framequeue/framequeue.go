// Package framequeue is a per-connection outbound byte queue with
// backpressure hooks. Frames are queued when the transport is not writable
// and drained FIFO when it becomes writable.
package framequeue

import (
	"sync"

	"github.com/webfuse/adapter/internal/wsfs/queue"
)

// Queue holds serialized JSON-RPC frames awaiting transmission on one
// connection: one instance per connection, guarded by its own mutex, never
// shared across connections.
type Queue struct {
	mu       sync.Mutex
	frames   *queue.IDQueue[[]byte]
	writable chan struct{}
}

// New creates an empty frame queue.
func New() *Queue {
	return &Queue{
		frames:   queue.New[[]byte](),
		writable: make(chan struct{}, 1),
	}
}

// Push enqueues a frame and signals a writer that data is available.
func (q *Queue) Push(frame []byte) {
	q.mu.Lock()
	q.frames.PushBack(frame)
	q.mu.Unlock()
	q.notify()
}

// Pop removes and returns the oldest queued frame. ok is false if the queue
// is empty.
func (q *Queue) Pop() (frame []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frames.PopFront()
}

// Len reports the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frames.Len()
}

// Writable returns a channel that receives a value whenever frames become
// available to drain. The connection's drain loop selects on this alongside
// its context's cancellation.
func (q *Queue) Writable() <-chan struct{} {
	return q.writable
}

func (q *Queue) notify() {
	select {
	case q.writable <- struct{}{}:
	default:
		// Already has a pending notification; the drain loop will catch up.
	}
}

// DrainAll pops every queued frame in FIFO order and calls send for each,
// stopping at the first error.
func (q *Queue) DrainAll(send func(frame []byte) error) error {
	for {
		frame, ok := q.Pop()
		if !ok {
			return nil
		}
		if err := send(frame); err != nil {
			return err
		}
	}
}
