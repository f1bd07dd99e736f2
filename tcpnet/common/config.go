package common

import (
	"fmt"
	"github.com/ValentinKolb/dNet/lib/framing"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is used when a connection is started with port 0
const DefaultPort = 7777

// --------------------------------------------------------------------------
// Shared socket configuration
// --------------------------------------------------------------------------

// TCPConf holds TCP specific socket options
type TCPConf struct {
	// TCPDelay keeps Nagle's algorithm enabled (false = TCP_NODELAY)
	TCPDelay bool
	// TCPKeepAliveSec enables TCP keep-alive with the given period (0 = disabled)
	TCPKeepAliveSec int
	// TCPLingerSec sets SO_LINGER to the given timeout (<= 0 = system default).
	// A zero linger would reset the connection on close and drop unsent frames
	TCPLingerSec int
}

// SocketConf holds socket buffer sizes in bytes (0 = system default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the transport manager and its receive worker
type ClientConfig struct {
	// Host and Port of the remote endpoint
	Host string
	Port int

	// ConnectTimeoutSecond bounds the blocking connect (0 = no timeout)
	ConnectTimeoutSecond int

	// PollIntervalMillis is the read deadline of the receive worker. It bounds how long
	// a stop request can wait for an in-flight read.
	PollIntervalMillis int

	// IdleSleepMillis is the pause of the receive worker after a read without data
	IdleSleepMillis int

	// ReadBufferSize is the size of the receive worker's read buffer
	ReadBufferSize int

	// MaxFrameSize is the largest payload accepted from the peer
	MaxFrameSize int

	TCPConf
	SocketConf
}

// DefaultClientConfig returns the reference configuration of the transport
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:                 "127.0.0.1",
		Port:                 DefaultPort,
		ConnectTimeoutSecond: 10,
		PollIntervalMillis:   50,
		IdleSleepMillis:      2,
		ReadBufferSize:       4096,
		MaxFrameSize:         framing.DefaultMaxFrameSize,
	}
}

// ConnectTimeout returns ConnectTimeoutSecond as a duration
func (c *ClientConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecond) * time.Second
}

// PollInterval returns the read deadline of the receive worker, at least one millisecond
func (c *ClientConfig) PollInterval() time.Duration {
	if c.PollIntervalMillis <= 0 {
		return time.Millisecond
	}
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// IdleSleep returns IdleSleepMillis as a duration
func (c *ClientConfig) IdleSleep() time.Duration {
	return time.Duration(c.IdleSleepMillis) * time.Millisecond
}

// Endpoint returns host:port of the configured remote endpoint
func (c *ClientConfig) Endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint())
	addField("Connect Timeout", fmt.Sprintf("%d sec", c.ConnectTimeoutSecond))
	addField("Poll Interval", fmt.Sprintf("%d ms", c.PollIntervalMillis))
	addField("Idle Sleep", fmt.Sprintf("%d ms", c.IdleSleepMillis))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))

	addSection("Socket")
	addField("TCP NoDelay", strconv.FormatBool(!c.TCPDelay))
	addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPLingerSec))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.WriteBufferSize))
	addField("Read Buffer (socket)", fmt.Sprintf("%d bytes", c.SocketConf.ReadBufferSize))

	return sb.String()
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig configures the peer server
type ServerConfig struct {
	// Endpoint is the listen address (e.g. 0.0.0.0:7777)
	Endpoint string

	// MaxFrameSize is the largest payload accepted from a client
	MaxFrameSize int

	// ReadBufferSize is the size of the per session read buffer
	ReadBufferSize int

	// TimeoutSecond closes sessions that stay silent for longer (0 = never)
	TimeoutSecond int

	// MetricsEndpoint serves Prometheus metrics over http when set (e.g. :9100)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string

	TCPConf
}

// DefaultServerConfig returns the reference configuration of the peer server
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:       net.JoinHostPort("0.0.0.0", strconv.Itoa(DefaultPort)),
		MaxFrameSize:   framing.DefaultMaxFrameSize,
		ReadBufferSize: 4096,
		LogLevel:       "info",
	}
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Peer Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))
	addField("TCP NoDelay", strconv.FormatBool(!c.TCPDelay))

	addSection("Observability")
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	} else {
		addField("Metrics Endpoint", "disabled")
	}
	addField("Log Level", c.LogLevel)

	return sb.String()
}
