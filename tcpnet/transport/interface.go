package transport

import (
	"time"
)

// --------------------------------------------------------------------------
// Upstream (packet consumer)
// --------------------------------------------------------------------------

// PacketConsumer receives raw packets from the transport.
// OnRawPacketReceived is called once per decoded frame, in arrival order, on the
// context that drives the transport. The payload is owned by the consumer.
type PacketConsumer interface {
	OnRawPacketReceived(payload []byte)
}

// PacketConsumerFunc adapts a function to the PacketConsumer interface
type PacketConsumerFunc func(payload []byte)

// OnRawPacketReceived calls f(payload)
func (f PacketConsumerFunc) OnRawPacketReceived(payload []byte) {
	f(payload)
}

// ConnectionObserver may be implemented by a PacketConsumer to be notified when the
// connection is lost (peer closed, receive error, malformed frame or send failure).
// It is called on the context that drives the transport.
type ConnectionObserver interface {
	OnConnectionLost(err error)
}

// --------------------------------------------------------------------------
// Upstream (packet producer)
// --------------------------------------------------------------------------

// PacketProducer is the interface upper layers use to send packets
type PacketProducer interface {
	// Send queues a packet for transmission on the next tick
	Send(payload []byte) error
	// Close closes the connection and releases the transport
	Close() error
}

// --------------------------------------------------------------------------
// Driving interface
// --------------------------------------------------------------------------

// TickDriven is implemented by components that are driven by an external scheduler.
// Tick is called once per scheduling frame with the time since the previous frame.
type TickDriven interface {
	Tick(delta time.Duration) error
}
