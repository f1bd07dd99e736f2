// Package tcp implements the dNet client transport over TCP.
//
// A Manager owns exactly one connection to a remote peer. Everything the host does
// with it happens on one owning goroutine (the game thread): Start, Tick, Stop and the
// delivery of inbound packets. Only the blocking socket reads run elsewhere, on a
// dedicated receive worker goroutine per connection.
//
// Data flow:
//
//	Connection.Send -> OutgoingQueue -> Tick (flush) -> frame -> socket
//	socket -> receive worker -> framing.Buffer -> Mailbox -> Tick -> PacketConsumer
//
// Key Components:
//
//   - Manager: lifecycle (Start, Stop), the per frame Tick, statistics and error
//     reporting. Tick first delivers every inbound packet that arrived since the last
//     tick and then writes all queued outbound packets in order.
//
//   - Connection: the per session facade handed to the upper networking stack. It
//     forwards Send to the manager, hands inbound packets to the consumer unchanged
//     and reports its state (connecting, open, closed, closed with error).
//
//   - receiveWorker: reads from the socket with a short read deadline so that stop
//     requests are observed promptly, reassembles frames and hands every payload to
//     the owning goroutine through a lock-free mailbox. It never closes the socket;
//     the manager joins it before closing.
//
//   - IConnector: the transport specific parts (resolve, connect, socket options),
//     replaceable for tests.
//
// Connection loss (peer closed, receive error, malformed frame, failed send) is
// reported on the owning goroutine: the connection moves to StateClosedWithError, a
// consumer implementing transport.ConnectionObserver is notified and Tick returns the
// error. The manager never reconnects on its own.
//
// Every manager also feeds process wide counters (frames, bytes, lost connections,
// flush latency) that can be exported with metrics.WritePrometheus.
package tcp
