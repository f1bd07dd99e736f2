package tcp

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dNet/lib/framing"
	"github.com/ValentinKolb/dNet/lib/queue"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"gopkg.in/tomb.v2"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"
)

const defaultReadBufferSize = 4096

// workerState is the lifecycle state of a receive worker
type workerState int32

const (
	workerIdle workerState = iota
	workerRunning
	workerStopping
	workerStopped
)

func (s workerState) String() string {
	switch s {
	case workerIdle:
		return "idle"
	case workerRunning:
		return "running"
	case workerStopping:
		return "stopping"
	case workerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("workerState(%d)", int32(s))
	}
}

// inboundEvent is handed from the receive worker to the owning context.
// Exactly one of payload and err is meaningful: err is set once, when the worker
// exits without being asked to.
type inboundEvent struct {
	payload []byte
	err     error
}

// receiveWorker owns the read side of a connection. It runs on its own goroutine,
// reassembles frames and pushes every decoded payload to the inbox.
// The worker never closes the connection.
type receiveWorker struct {
	conn   net.Conn // not owned
	inbox  *queue.Mailbox[inboundEvent]
	frames *framing.Buffer
	stats  *Stats

	readBufferSize int
	pollInterval   time.Duration
	idleSleep      time.Duration

	state atomic.Int32
	tmb   tomb.Tomb
}

func newReceiveWorker(conn net.Conn, inbox *queue.Mailbox[inboundEvent], config common.ClientConfig, stats *Stats) *receiveWorker {
	readBufferSize := config.ReadBufferSize
	if readBufferSize <= 0 {
		readBufferSize = defaultReadBufferSize
	}

	return &receiveWorker{
		conn:           conn,
		inbox:          inbox,
		frames:         framing.NewBuffer(config.MaxFrameSize),
		stats:          stats,
		readBufferSize: readBufferSize,
		pollInterval:   config.PollInterval(),
		idleSleep:      config.IdleSleep(),
	}
}

// State returns the current lifecycle state
func (w *receiveWorker) State() workerState {
	return workerState(w.state.Load())
}

// Start spawns the receive goroutine. A worker can only be started once.
func (w *receiveWorker) Start() error {
	if !w.state.CompareAndSwap(int32(workerIdle), int32(workerRunning)) {
		return common.WrapError(common.ErrThreadStart, fmt.Errorf("worker is %s", w.State()))
	}
	w.tmb.Go(w.run)
	return nil
}

// RequestStop asks the goroutine to exit without waiting for it
func (w *receiveWorker) RequestStop() {
	if w.state.CompareAndSwap(int32(workerRunning), int32(workerStopping)) {
		// interrupt a blocking read, the socket itself stays open
		_ = w.conn.SetReadDeadline(time.Now())
	}
}

// Stop requests the goroutine to exit and waits until it has. It returns the reason
// the worker exited on its own, or nil.
func (w *receiveWorker) Stop() error {
	if w.state.CompareAndSwap(int32(workerIdle), int32(workerStopped)) {
		return nil // never started, nothing to join
	}

	w.RequestStop()
	w.tmb.Kill(nil)
	return w.tmb.Wait()
}

// Dead returns a channel that is closed once the goroutine has exited
func (w *receiveWorker) Dead() <-chan struct{} {
	return w.tmb.Dead()
}

// run is the receive loop
func (w *receiveWorker) run() error {
	defer w.state.Store(int32(workerStopped))

	buf := make([]byte, w.readBufferSize)
	for {
		// The deadline is set before the stop check. A stop request that misses the
		// check moves the deadline afterwards and interrupts the read below.
		if err := w.conn.SetReadDeadline(time.Now().Add(w.pollInterval)); err != nil {
			return w.exit(fmt.Errorf("set read deadline: %w", err))
		}
		if w.stopRequested() {
			return nil
		}

		n, err := w.conn.Read(buf)
		if n > 0 {
			w.stats.recordRead(n)

			payloads, feedErr := w.frames.Feed(buf[:n])
			for _, payload := range payloads {
				w.inbox.Push(inboundEvent{payload: payload})
			}
			w.stats.recordFrames(len(payloads))

			if feedErr != nil {
				return w.exit(feedErr)
			}
		}

		switch {
		case err == nil:
			continue
		case w.stopRequested():
			return nil
		case errors.Is(err, os.ErrDeadlineExceeded):
			// no data within the poll interval
			time.Sleep(w.idleSleep)
		case errors.Is(err, io.EOF):
			return w.exit(common.ErrPeerClosed)
		default:
			return w.exit(fmt.Errorf("receive failed: %w", err))
		}
	}
}

// exit posts the reason the worker stopped on its own to the owning context
func (w *receiveWorker) exit(err error) error {
	Logger.Debugf("receive worker for %s exiting: %v", w.conn.RemoteAddr(), err)
	w.inbox.Push(inboundEvent{err: err})
	return err
}

func (w *receiveWorker) stopRequested() bool {
	return workerState(w.state.Load()) == workerStopping
}
