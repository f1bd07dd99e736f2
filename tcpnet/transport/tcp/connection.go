package tcp

import (
	"fmt"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"github.com/ValentinKolb/dNet/tcpnet/transport"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// ConnState is the state of a Connection
type ConnState int32

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
	StateClosedWithError
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedWithError:
		return "closed with error"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Connection is the per session facade handed to the upper networking stack.
// It holds a back reference to the manager that owns the socket.
type Connection struct {
	manager  *Manager
	consumer transport.PacketConsumer
	host     string
	port     int

	state atomic.Int32
	errMu sync.Mutex
	err   error
}

var _ transport.PacketProducer = (*Connection)(nil)

func newConnection(manager *Manager, consumer transport.PacketConsumer, host string, port int) *Connection {
	c := &Connection{
		manager:  manager,
		consumer: consumer,
		host:     host,
		port:     port,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// Send queues payload for transmission on the next tick. The payload is copied.
func (c *Connection) Send(payload []byte) error {
	if c.State() != StateOpen {
		return common.ErrNotConnected
	}
	return c.manager.Send(payload)
}

// LowLevelSend sends the first countBits bits of data, rounded up to whole bytes
func (c *Connection) LowLevelSend(data []byte, countBits int) error {
	if countBits < 0 {
		return fmt.Errorf("invalid bit count %d", countBits)
	}
	countBytes := (countBits + 7) / 8
	if countBytes > len(data) {
		return fmt.Errorf("bit count %d exceeds buffer of %d bytes", countBits, len(data))
	}
	return c.Send(data[:countBytes])
}

// Close marks the connection as closed and stops the manager. Close is idempotent.
func (c *Connection) Close() error {
	c.markClosed(StateClosed, nil)
	c.manager.closeConnection(c)
	return nil
}

// RemoteDescriptor returns host:port as supplied when the connection was started
func (c *Connection) RemoteDescriptor() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// State returns the current state of the connection
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Err returns the error that closed the connection, if any
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Connection) setOpen() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// markClosed moves a connecting or open connection to state. Connections that are
// already closed keep their state and error.
func (c *Connection) markClosed(state ConnState, err error) bool {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	for {
		current := c.state.Load()
		if ConnState(current) != StateOpen && ConnState(current) != StateConnecting {
			return false
		}
		if c.state.CompareAndSwap(current, int32(state)) {
			break
		}
	}

	if err != nil {
		c.err = err
	}
	return true
}

// receivedRawPacket hands an inbound packet to the consumer unchanged
func (c *Connection) receivedRawPacket(payload []byte) {
	if c.consumer == nil {
		Logger.Debugf("no consumer registered, dropping packet of %d bytes", len(payload))
		return
	}
	c.consumer.OnRawPacketReceived(payload)
}
