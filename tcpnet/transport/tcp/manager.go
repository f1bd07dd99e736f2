package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dNet/lib/framing"
	"github.com/ValentinKolb/dNet/lib/queue"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"github.com/ValentinKolb/dNet/tcpnet/transport"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns the socket of a single connection, the receive worker reading from it
// and the queue of packets waiting to be written.
//
// Start, Tick, Stop and DeliverIncoming must be called from one owning goroutine
// (the game thread of the host). Send may be called from any goroutine.
//
// Usage:
//
//	m := tcp.NewTCPManager(common.DefaultClientConfig(), consumer)
//	conn, err := m.Start("127.0.0.1", 7777)
//	if err != nil {
//		return err
//	}
//	defer m.Stop()
//
//	conn.Send([]byte("ping"))
//	for range ticker.C {
//		if err := m.Tick(delta); err != nil {
//			return err
//		}
//	}
type Manager struct {
	connector IConnector
	config    common.ClientConfig
	consumer  transport.PacketConsumer

	// lifecycle, guarded by lifeMu
	lifeMu sync.Mutex
	conn   net.Conn
	worker *receiveWorker

	connection atomic.Pointer[Connection]
	inbox      *queue.Mailbox[inboundEvent]
	outgoing   *queue.OutgoingQueue
	frameBuf   []byte // reused by Tick
	stats      *Stats

	errMu   sync.Mutex
	lastErr error
}

var _ transport.TickDriven = (*Manager)(nil)

// -----------------------------------------------------------
// Factory Methods
// -----------------------------------------------------------

// NewManager creates a manager that connects with the given connector and delivers
// inbound packets to consumer. If consumer also implements
// transport.ConnectionObserver it is told when the connection is lost.
func NewManager(connector IConnector, config common.ClientConfig, consumer transport.PacketConsumer) *Manager {
	return &Manager{
		connector: connector,
		config:    config,
		consumer:  consumer,
		inbox:     queue.NewMailbox[inboundEvent](),
		outgoing:  queue.NewOutgoingQueue(),
		stats:     newStats(),
	}
}

// NewTCPManager creates a manager using plain TCP sockets
func NewTCPManager(config common.ClientConfig, consumer transport.PacketConsumer) *Manager {
	return NewManager(&tcpConnector{}, config, consumer)
}

// -----------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------

// Start connects to host:port (port 0 selects common.DefaultPort) and starts the
// receive worker. See StartContext.
func (m *Manager) Start(host string, port int) (*Connection, error) {
	return m.StartContext(context.Background(), host, port)
}

// StartContext resolves host, performs a blocking connect bounded by ctx and the
// configured connect timeout, applies the socket options and starts the receive
// worker. On failure everything acquired so far is released and the returned error
// wraps one of common.ErrAddressResolution, common.ErrSocketCreate,
// common.ErrConnectFailed or common.ErrThreadStart.
func (m *Manager) StartContext(ctx context.Context, host string, port int) (*Connection, error) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.conn != nil {
		return nil, common.ErrAlreadyStarted
	}

	if port == 0 {
		port = common.DefaultPort
	}
	connection := newConnection(m, m.consumer, host, port)

	endpoint, err := m.connector.Resolve(ctx, host, port)
	if err != nil {
		return nil, common.WrapError(common.ErrAddressResolution, err)
	}

	Logger.Debugf("Connecting to %s (%s) using %s transport", connection.RemoteDescriptor(), endpoint, m.connector.GetName())

	conn, err := m.connector.Connect(ctx, endpoint, m.config)
	if err != nil {
		return nil, classifyDialError(err)
	}

	if err := m.connector.UpgradeConnection(conn, m.config); err != nil {
		conn.Close()
		return nil, common.WrapError(common.ErrSocketCreate, fmt.Errorf("failed to apply socket options: %w", err))
	}

	// nothing from a previous session may leak into this one
	m.discardPending()

	worker := newReceiveWorker(conn, m.inbox, m.config, m.stats)
	if err := worker.Start(); err != nil {
		conn.Close()
		return nil, err
	}

	m.conn = conn
	m.worker = worker
	m.setErr(nil)
	m.stats.connects.Inc()

	connection.setOpen()
	m.connection.Store(connection)

	Logger.Infof("Connected to %s using %s transport", connection.RemoteDescriptor(), m.connector.GetName())
	return connection, nil
}

// Stop stops the receive worker, waits for it to exit and closes the socket.
// Unsent packets are discarded. Stop is idempotent and safe to call before Start.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	connection := m.connection.Swap(nil)
	if connection != nil {
		connection.markClosed(StateClosed, nil)
	}

	// the worker has to be gone before the socket is closed
	if m.worker != nil {
		if err := m.worker.Stop(); err != nil {
			Logger.Debugf("Receive worker had exited: %v", err)
		}
		m.worker = nil
	}

	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			Logger.Warningf("Error closing socket: %v", err)
		}
		m.conn = nil

		if connection != nil {
			Logger.Infof("Connection to %s closed", connection.RemoteDescriptor())
		}
	}

	m.discardPending()
}

// closeConnection stops the manager if connection is the active one
func (m *Manager) closeConnection(connection *Connection) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.connection.Load() == connection {
		m.stopLocked()
	}
}

// discardPending drops queued outbound packets and undelivered inbound events
func (m *Manager) discardPending() {
	if dropped := len(m.outgoing.DrainAll()); dropped > 0 {
		Logger.Debugf("Discarded %d unsent packets", dropped)
	}
	if dropped := m.inbox.Drain(func(inboundEvent) {}); dropped > 0 {
		Logger.Debugf("Discarded %d undelivered inbound events", dropped)
	}
}

// -----------------------------------------------------------
// Send / Receive
// -----------------------------------------------------------

// Send copies payload into the outgoing queue. It never touches the network; the
// packet is written on the next Tick. Send returns common.ErrNotConnected if there
// is no open connection.
func (m *Manager) Send(payload []byte) error {
	connection := m.connection.Load()
	if connection == nil || connection.State() != StateOpen {
		return common.ErrNotConnected
	}

	m.outgoing.Enqueue(bytes.Clone(payload))
	return nil
}

// Tick delivers every packet received since the last tick and then writes all queued
// packets, in order, to the socket. It is intended to be called once per frame.
//
// If the receive worker lost the connection, or a write fails, the connection is
// closed with an error, the consumer is notified (see transport.ConnectionObserver),
// the manager stops and Tick returns the error. Tick on a stopped manager does nothing.
func (m *Manager) Tick(delta time.Duration) error {
	m.stats.recordTick(delta)

	if m.connection.Load() == nil {
		return nil
	}

	var lost error
	m.inbox.Drain(func(event inboundEvent) {
		if event.err != nil {
			lost = event.err
			return
		}
		m.DeliverIncoming(event.payload)
	})

	if lost != nil {
		m.fail(lost)
		return lost
	}

	return m.flush()
}

// DeliverIncoming forwards an inbound packet to the connection and from there to the
// consumer. Packets arriving without an open connection are dropped.
func (m *Manager) DeliverIncoming(payload []byte) {
	connection := m.connection.Load()
	if connection == nil || connection.State() != StateOpen {
		Logger.Debugf("Dropping inbound packet of %d bytes, no open connection", len(payload))
		return
	}
	connection.receivedRawPacket(payload)
}

// flush writes the current batch of queued packets
func (m *Manager) flush() error {
	batch := m.outgoing.DrainAll()
	if len(batch) == 0 {
		return nil
	}

	// the consumer may have closed the connection during delivery
	conn := m.conn
	if conn == nil || m.connection.Load() == nil {
		Logger.Debugf("Dropping %d packets, connection closed", len(batch))
		return nil
	}

	start := time.Now()
	defer flushDuration.UpdateDuration(start)

	for i, payload := range batch {
		m.frameBuf = framing.AppendFrame(m.frameBuf[:0], payload)

		if err := common.WriteFull(conn, m.frameBuf); err != nil {
			if dropped := len(batch) - i - 1; dropped > 0 {
				Logger.Warningf("Dropping %d queued packets after failed send", dropped)
			}
			err = common.WrapError(common.ErrSendFailed, err)
			m.fail(err)
			return err
		}

		m.stats.recordSent(len(m.frameBuf))
	}

	Logger.Debugf("Flushed %d packets", len(batch))
	return nil
}

// fail closes the active connection with err, stops the manager and notifies the consumer
func (m *Manager) fail(err error) {
	connection := m.connection.Load()
	if connection == nil {
		return
	}

	if errors.Is(err, common.ErrPeerClosed) {
		Logger.Infof("Connection to %s closed by peer", connection.RemoteDescriptor())
	} else {
		Logger.Warningf("Connection to %s lost: %v", connection.RemoteDescriptor(), err)
	}
	connectionsLostTotal.Inc()

	m.setErr(err)
	connection.markClosed(StateClosedWithError, err)
	m.Stop()

	if observer, ok := m.consumer.(transport.ConnectionObserver); ok {
		observer.OnConnectionLost(err)
	}
}

// -----------------------------------------------------------
// Accessors
// -----------------------------------------------------------

// Connection returns the open connection or nil
func (m *Manager) Connection() *Connection {
	return m.connection.Load()
}

// IsConnected reports whether there is an open connection
func (m *Manager) IsConnected() bool {
	connection := m.connection.Load()
	return connection != nil && connection.State() == StateOpen
}

// Ready returns a channel that is notified when inbound data is waiting for the next
// Tick. Hosts without a fixed frame rate can use it to tick early.
func (m *Manager) Ready() <-chan struct{} {
	return m.inbox.Ready()
}

// Err returns the error that closed the last connection, or nil
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

// Stats returns a snapshot of the manager's traffic counters. It is safe to call from
// any goroutine
func (m *Manager) Stats() StatsSnapshot {
	s := m.stats.snapshot()
	s.QueuedPackets = m.outgoing.Len()
	return s
}

func (m *Manager) setErr(err error) {
	m.errMu.Lock()
	m.lastErr = err
	m.errMu.Unlock()
}
