// Package queue provides the two queues that connect the goroutines of the dNet
// transport.
//
// The package contains:
//   - OutgoingQueue: a mutex protected FIFO of packets waiting for the next tick.
//     Any goroutine may Enqueue; the owning context removes everything at once
//     with DrainAll.
//   - Mailbox: a lock-free Multi-Producer Single-Consumer (MPSC) queue used to hand
//     decoded packets from the receive goroutine to the owning context. Unlike a
//     channel it is unbounded and is drained synchronously by the consumer, so the
//     consumer decides when (and on which goroutine) items are processed.
//
// Both queues preserve insertion order. For the Mailbox this holds per producer;
// under concurrent Push calls the order between producers is determined by which
// producer completes its operation first.
package queue
