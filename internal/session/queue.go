package session

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by [Queue.Submit] after the queue has shut down.
var ErrQueueClosed = errors.New("session queue closed")

// defaultQueueDepth bounds how many pending mutations may back up before
// producers block. Transcript fragments arrive at conversational pace, so a
// small window is plenty.
const defaultQueueDepth = 64

// Queue serializes all mutations of a single session into one ordered
// processing sequence: many producers (client audio events, model peer
// events, control messages) submit closures, one goroutine runs them in
// submission order. This is what keeps transcript, extracted fields, and
// conversation state mutually consistent without per-field locking.
type Queue struct {
	ch chan func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewQueue creates a queue and starts its single mutator goroutine.
// Call [Queue.Close] when the session ends.
func NewQueue() *Queue {
	q := &Queue{
		ch:   make(chan func(), defaultQueueDepth),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for fn := range q.ch {
		fn()
	}
}

// Submit enqueues fn for execution after all previously submitted mutations.
// Blocks when the queue is full (backpressure on the producing stream).
// Returns [ErrQueueClosed] once the queue has shut down.
func (q *Queue) Submit(fn func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	// Hold the lock across the send so Close cannot close the channel while a
	// producer is mid-send.
	defer q.mu.Unlock()

	q.ch <- fn
	return nil
}

// Close stops accepting new mutations, runs those already queued, and waits
// for the mutator goroutine to exit. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	<-q.done
}
