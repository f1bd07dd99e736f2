package queue

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the mailbox
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Mailbox is a lock-free multi-producer single-consumer queue.
//
// Producers call Push from any goroutine. A single consumer calls Drain to process
// everything that has been pushed so far. The implementation is a linked list with a
// sentinel node; producers append with compare-and-swap on the tail, the consumer
// moves the head forward. A mailbox has no closed state, it can be drained and
// reused for as long as its owner lives.
type Mailbox[T any] struct {
	head  atomic.Pointer[node[T]] // sentinel, only touched by the consumer
	tail  atomic.Pointer[node[T]]
	ready chan struct{}
}

// NewMailbox creates an empty mailbox
func NewMailbox[T any]() *Mailbox[T] {
	sentinel := &node[T]{}

	m := &Mailbox[T]{
		ready: make(chan struct{}, 1),
	}
	m.head.Store(sentinel)
	m.tail.Store(sentinel)

	return m
}

// Push adds a value to the mailbox.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Mailbox[T]) Push(value T) {
	newNode := &node[T]{value: value}

	var backoff uint8 = 0
	for {
		tailNode := m.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have moved the tail, that's fine
				m.tail.CompareAndSwap(tailNode, newNode)
				m.signal()
				return
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			m.tail.CompareAndSwap(tailNode, next)
		}

		// spin at low contention, yield at high contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Drain removes every value that is currently in the mailbox and passes it to fn in
// push order. It returns the number of values processed. Values pushed while Drain is
// running may or may not be included.
//
// Drain must only be called by a single consumer goroutine at a time.
func (m *Mailbox[T]) Drain(fn func(T)) int {
	count := 0
	for {
		head := m.head.Load()
		next := head.next.Load()
		if next == nil {
			return count
		}

		value := next.value

		// next becomes the new sentinel, drop its value for the gc
		var zero T
		next.value = zero
		m.head.Store(next)

		fn(value)
		count++
	}
}

// Ready returns a channel that receives a notification after values were pushed.
// Notifications are coalesced; after receiving one the consumer should Drain.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Len returns an approximate count of the number of values in the mailbox.
// This is O(n) and should only be used for debugging.
func (m *Mailbox[T]) Len() int {
	count := 0
	current := m.head.Load()

	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}

	return count
}

// signal wakes a consumer waiting on Ready without blocking the producer
func (m *Mailbox[T]) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
