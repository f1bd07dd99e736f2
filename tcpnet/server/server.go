package server

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dNet/lib/framing"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("server")

var (
	sessionsTotal        = metrics.GetOrCreateCounter("dnet_server_sessions_total")
	framesReceivedTotal  = metrics.GetOrCreateCounter("dnet_server_frames_received_total")
	framesSentTotal      = metrics.GetOrCreateCounter("dnet_server_frames_sent_total")
	malformedFramesTotal = metrics.GetOrCreateCounter("dnet_server_malformed_frames_total")
	handleDuration       = metrics.GetOrCreateHistogram("dnet_server_handle_duration_seconds")
)

// ErrServerClosed is returned by Serve after Close
var ErrServerClosed = errors.New("server closed")

// HandleFunc processes one inbound packet of a session and returns the packets to
// send back, in order. It is called on the session goroutine, never concurrently for
// the same session.
type HandleFunc func(sessionID uint64, payload []byte) [][]byte

// EchoHandler sends every packet back unchanged
func EchoHandler(_ uint64, payload []byte) [][]byte {
	return [][]byte{payload}
}

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g. "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Server
// -----------------------------------------------------------

// Server accepts transport connections and answers every packet with the packets
// returned by its handler
type Server struct {
	connector IServerConnector
	handler   HandleFunc
	config    common.ServerConfig
	listener  net.Listener

	bufferPool *sync.Pool
	sessions   *xsync.MapOf[uint64, net.Conn]
	nextID     atomic.Uint64
	wg         sync.WaitGroup

	mu        sync.Mutex // orders session registration against Close
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewServer creates a TCP server listening on config.Endpoint. Call Serve to accept
// connections.
func NewServer(config common.ServerConfig, handler HandleFunc) (*Server, error) {
	return NewServerWithConnector(&tcpServerConnector{}, config, handler)
}

// NewServerWithConnector creates a server listening with the given connector
func NewServerWithConnector(connector IServerConnector, config common.ServerConfig, handler HandleFunc) (*Server, error) {
	if handler == nil {
		handler = EchoHandler
	}

	bufferSize := config.ReadBufferSize
	if bufferSize <= 0 {
		bufferSize = 4096
	}

	listener, err := connector.Listen(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	return &Server{
		connector: connector,
		handler:   handler,
		config:    config,
		listener:  listener,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
		sessions: xsync.NewMapOf[uint64, net.Conn](),
	}, nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// SessionCount returns the number of connected clients
func (s *Server) SessionCount() int {
	return s.sessions.Size()
}

// Serve accepts connections until Close is called. It always returns a non-nil
// error, ErrServerClosed after Close.
func (s *Server) Serve() error {
	Logger.Infof("Starting %s server on %s", s.connector.GetName(), s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				Logger.Warningf("Accept error: %v", err)
				continue
			}
			Logger.Errorf("Accept error: %v", err)
			return err
		}

		if err := s.connector.UpgradeConnection(conn, s.config); err != nil {
			Logger.Warningf("Failed to apply socket options for %s: %v", conn.RemoteAddr(), err)
		}

		// Close may have run since Accept returned
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			conn.Close()
			return ErrServerClosed
		}
		id := s.nextID.Add(1)
		s.sessions.Store(id, conn)
		s.wg.Add(1)
		s.mu.Unlock()

		sessionsTotal.Inc()
		go s.handleSession(id, conn)
	}
}

// Close stops accepting, closes every session and waits for the session goroutines
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		s.mu.Unlock()

		err = s.listener.Close()

		s.sessions.Range(func(id uint64, conn net.Conn) bool {
			conn.Close()
			return true
		})
		s.wg.Wait()

		Logger.Infof("Server on %s closed", s.listener.Addr())
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleSession serves one client until it disconnects or sends a malformed frame
func (s *Server) handleSession(id uint64, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.sessions.Delete(id)
		conn.Close()
	}()

	Logger.Infof("Session %d opened from %s", id, conn.RemoteAddr())

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second
	frames := framing.NewBuffer(s.config.MaxFrameSize)

	bufp := s.bufferPool.Get().(*[]byte)
	defer s.bufferPool.Put(bufp)
	buf := *bufp

	var out []byte
	for {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Session %d: failed to set read deadline: %v", id, err)
				return
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			payloads, feedErr := frames.Feed(buf[:n])
			for _, payload := range payloads {
				framesReceivedTotal.Inc()

				start := time.Now()
				responses := s.handler(id, payload)
				handleDuration.UpdateDuration(start)

				out = out[:0]
				for _, resp := range responses {
					out = framing.AppendFrame(out, resp)
				}
				if len(out) == 0 {
					continue
				}

				if timeout > 0 {
					_ = conn.SetWriteDeadline(time.Now().Add(timeout))
				}
				if err := common.WriteFull(conn, out); err != nil {
					Logger.Warningf("Session %d: failed to write response: %v", id, err)
					return
				}
				framesSentTotal.Add(len(responses))
			}

			if feedErr != nil {
				malformedFramesTotal.Inc()
				Logger.Warningf("Session %d: %v, closing", id, feedErr)
				return
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			Logger.Infof("Session %d closed by client", id)
			return
		case errors.Is(err, os.ErrDeadlineExceeded):
			Logger.Infof("Session %d timed out", id)
			return
		case s.closed.Load():
			return
		default:
			Logger.Warningf("Session %d: read error: %v", id, err)
			return
		}
	}
}

// --------------------------------------------------------------------------
// TCP connector
// --------------------------------------------------------------------------

// tcpServerConnector implements IServerConnector for TCP sockets
type tcpServerConnector struct{}

func (c *tcpServerConnector) GetName() string {
	return "tcp"
}

func (c *tcpServerConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	return listener, nil
}

func (c *tcpServerConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	if err := tcpConn.SetNoDelay(!config.TCPDelay); err != nil {
		return err
	}

	if config.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(config.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	if config.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(config.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}
