package tcp

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"strings"
	"sync/atomic"
	"time"
)

// Process wide metrics, exposed with metrics.WritePrometheus
var (
	framesSentTotal      = metrics.GetOrCreateCounter("dnet_transport_frames_sent_total")
	framesReceivedTotal  = metrics.GetOrCreateCounter("dnet_transport_frames_received_total")
	bytesSentTotal       = metrics.GetOrCreateCounter("dnet_transport_bytes_sent_total")
	bytesReceivedTotal   = metrics.GetOrCreateCounter("dnet_transport_bytes_received_total")
	connectionsLostTotal = metrics.GetOrCreateCounter("dnet_transport_connections_lost_total")
	flushDuration        = metrics.GetOrCreateHistogram("dnet_transport_tick_flush_duration_seconds")
)

// Stats counts the traffic of a single manager. The receive worker and the owning
// context update it concurrently, snapshots may be taken from any goroutine.
type Stats struct {
	framesSent     *xsync.Counter
	framesReceived *xsync.Counter
	bytesSent      *xsync.Counter
	bytesReceived  *xsync.Counter
	ticks          *xsync.Counter
	connects       *xsync.Counter
	lastTickDelta  atomic.Int64 // nanoseconds
}

func newStats() *Stats {
	return &Stats{
		framesSent:     xsync.NewCounter(),
		framesReceived: xsync.NewCounter(),
		bytesSent:      xsync.NewCounter(),
		bytesReceived:  xsync.NewCounter(),
		ticks:          xsync.NewCounter(),
		connects:       xsync.NewCounter(),
	}
}

// recordSent is called once per frame written to the socket
func (s *Stats) recordSent(frameLen int) {
	s.framesSent.Inc()
	s.bytesSent.Add(int64(frameLen))
	framesSentTotal.Inc()
	bytesSentTotal.Add(frameLen)
}

// recordRead is called for every successful socket read
func (s *Stats) recordRead(n int) {
	s.bytesReceived.Add(int64(n))
	bytesReceivedTotal.Add(n)
}

// recordFrames is called with the number of frames decoded from a read
func (s *Stats) recordFrames(n int) {
	s.framesReceived.Add(int64(n))
	framesReceivedTotal.Add(n)
}

func (s *Stats) recordTick(delta time.Duration) {
	s.ticks.Inc()
	s.lastTickDelta.Store(int64(delta))
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesSent:     s.framesSent.Value(),
		FramesReceived: s.framesReceived.Value(),
		BytesSent:      s.bytesSent.Value(),
		BytesReceived:  s.bytesReceived.Value(),
		Ticks:          s.ticks.Value(),
		Connects:       s.connects.Value(),
		LastTickDelta:  time.Duration(s.lastTickDelta.Load()),
	}
}

// StatsSnapshot is a point in time copy of a manager's counters
type StatsSnapshot struct {
	FramesSent     int64
	FramesReceived int64
	BytesSent      int64 // including frame headers
	BytesReceived  int64 // including frame headers
	Ticks          int64
	Connects       int64
	LastTickDelta  time.Duration
	QueuedPackets  int
}

// String returns a formatted string representation of the snapshot
func (s StatsSnapshot) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("\nTRANSPORT STATS\n")
	addField("Frames Sent", fmt.Sprintf("%d", s.FramesSent))
	addField("Frames Received", fmt.Sprintf("%d", s.FramesReceived))
	addField("Bytes Sent", fmt.Sprintf("%d", s.BytesSent))
	addField("Bytes Received", fmt.Sprintf("%d", s.BytesReceived))
	addField("Ticks", fmt.Sprintf("%d", s.Ticks))
	addField("Connects", fmt.Sprintf("%d", s.Connects))
	addField("Last Tick Delta", s.LastTickDelta.String())
	addField("Queued Packets", fmt.Sprintf("%d", s.QueuedPackets))

	return sb.String()
}
