package queue

import (
	"sync"
)

// OutgoingQueue is an order preserving buffer of pending outbound packets.
// Enqueue and DrainAll may be called concurrently from any goroutine.
type OutgoingQueue struct {
	mu      sync.Mutex
	packets [][]byte
}

// NewOutgoingQueue creates an empty queue
func NewOutgoingQueue() *OutgoingQueue {
	return &OutgoingQueue{}
}

// Enqueue appends payload to the tail of the queue. The queue keeps a reference to
// payload, callers that reuse their buffers must pass a copy.
// There is no upper bound and no backpressure.
func (q *OutgoingQueue) Enqueue(payload []byte) {
	q.mu.Lock()
	q.packets = append(q.packets, payload)
	q.mu.Unlock()
}

// DrainAll removes and returns every queued payload in insertion order.
// It returns nil if the queue is empty.
func (q *OutgoingQueue) DrainAll() [][]byte {
	q.mu.Lock()
	batch := q.packets
	q.packets = nil
	q.mu.Unlock()
	return batch
}

// Len returns the number of queued payloads
func (q *OutgoingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}
