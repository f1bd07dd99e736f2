package tcp

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"net/netip"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("transport")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IConnector defines the transport-specific connection operations of the manager
type IConnector interface {
	// GetName returns the name of the transport type (e.g. "tcp")
	GetName() string

	// Resolve validates host and port and returns a dialable endpoint
	Resolve(ctx context.Context, host string, port int) (string, error)

	// Connect establishes a single connection to endpoint
	Connect(ctx context.Context, endpoint string, config common.ClientConfig) (net.Conn, error)

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// tcpConnector implements IConnector for TCP sockets
type tcpConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see IConnector)
// --------------------------------------------------------------------------

func (c *tcpConnector) GetName() string {
	return "tcp"
}

func (c *tcpConnector) Resolve(ctx context.Context, host string, port int) (string, error) {
	if host == "" {
		return "", errors.New("empty host")
	}
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}

	// literal addresses need no lookup
	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip, uint16(port)).String(), nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses found for %s", host)
	}

	// prefer IPv4, most game servers only listen on it
	ip := addrs[0].Unmap()
	for _, a := range addrs {
		if a.Unmap().Is4() {
			ip = a.Unmap()
			break
		}
	}
	return netip.AddrPortFrom(ip, uint16(port)).String(), nil
}

func (c *tcpConnector) Connect(ctx context.Context, endpoint string, config common.ClientConfig) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   config.ConnectTimeout(),
		KeepAlive: -1, // configured in UpgradeConnection
	}
	return dialer.DialContext(ctx, "tcp", endpoint)
}

// UpgradeConnection applies performance optimizations to a TCP connection
// using configuration values from TCPConf and SocketConf
func (c *tcpConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm unless TCPDelay is configured
	if err := tcpConn.SetNoDelay(!config.TCPDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if config.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if config.SocketConf.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(config.SocketConf.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if config.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(config.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	// Set TCP linger option if configured, a zero linger would reset on close
	if config.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(config.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// classifyDialError maps a dial error to ErrSocketCreate when the socket itself
// could not be created and to ErrConnectFailed otherwise
func classifyDialError(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM,
			syscall.EAFNOSUPPORT, syscall.EPROTONOSUPPORT:
			return common.WrapError(common.ErrSocketCreate, err)
		}
	}
	return common.WrapError(common.ErrConnectFailed, err)
}
