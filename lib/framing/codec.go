package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the length prefix in bytes
	HeaderSize = 4

	// DefaultMaxFrameSize is the largest payload a Buffer accepts unless configured otherwise
	DefaultMaxFrameSize = 16 << 20 // 16 MiB
)

// ErrMalformedFrame is returned when a length prefix declares a payload larger than
// the configured maximum frame size
var ErrMalformedFrame = errors.New("malformed frame")

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Encode returns the frame for payload: the 4 byte big endian length of payload
// followed by payload itself. Encode never fails.
func Encode(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload)
}

// AppendFrame appends the frame for payload to dst and returns the extended slice
func AppendFrame(dst []byte, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// --------------------------------------------------------------------------
// Stream Reassembly
// --------------------------------------------------------------------------

// Buffer reassembles frames from a byte stream. It is not safe for concurrent use;
// the receive side of a connection owns exactly one Buffer.
type Buffer struct {
	data     []byte // accumulated bytes, data[off:] is unconsumed
	off      int    // number of leading bytes already decoded into frames
	maxFrame uint32
}

// NewBuffer creates a Buffer that rejects frames larger than maxFrameSize bytes.
// A value <= 0 selects DefaultMaxFrameSize.
func NewBuffer(maxFrameSize int) *Buffer {
	if maxFrameSize <= 0 || uint64(maxFrameSize) > uint64(^uint32(0)) {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Buffer{maxFrame: uint32(maxFrameSize)}
}

// Feed appends p to the buffer and returns every payload that is now complete, in
// stream order. Returned payloads are copies and remain valid after later calls.
//
// If a length prefix exceeds the maximum frame size Feed returns the payloads decoded
// before it together with an error wrapping ErrMalformedFrame. The stream cannot be
// resynchronised after that and the Buffer should be discarded.
func (b *Buffer) Feed(p []byte) ([][]byte, error) {
	b.compact()
	b.data = append(b.data, p...)

	var frames [][]byte
	for {
		unread := b.data[b.off:]
		if len(unread) < HeaderSize {
			return frames, nil
		}

		size := binary.BigEndian.Uint32(unread[:HeaderSize])
		if size > b.maxFrame {
			return frames, fmt.Errorf("%w: declared length %d exceeds maximum %d", ErrMalformedFrame, size, b.maxFrame)
		}

		end := HeaderSize + int(size)
		if len(unread) < end {
			return frames, nil
		}

		payload := make([]byte, size)
		copy(payload, unread[HeaderSize:end])
		frames = append(frames, payload)
		b.off += end
	}
}

// Buffered returns the bytes that have been fed but not yet decoded into a frame.
// The slice aliases the internal buffer and is only valid until the next Feed.
func (b *Buffer) Buffered() []byte {
	return b.data[b.off:]
}

// Len returns the number of buffered, not yet decoded bytes
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Reset discards all buffered bytes
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// compact drops consumed bytes so the buffer does not grow with the stream
func (b *Buffer) compact() {
	if b.off == 0 {
		return
	}
	n := copy(b.data, b.data[b.off:])
	b.data = b.data[:n]
	b.off = 0
}
