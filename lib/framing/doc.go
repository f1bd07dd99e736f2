// Package framing implements the length-prefixed wire format used by the dNet
// transport. Every packet on the wire is a frame:
//
//	[4 bytes] payload length (uint32, big endian)
//	[N bytes] payload
//
// There is no magic number, version byte or checksum. TCP provides a byte stream
// without message boundaries, so the receiving side accumulates bytes in a Buffer
// and extracts complete frames as soon as they are available.
//
// Key Components:
//
//   - Encode / AppendFrame: turn a payload into a frame ready for transmission.
//
//   - Buffer: the stream reassembly buffer. Feed appends newly received bytes and
//     returns every payload that became complete. The Buffer is resumable across
//     calls and holds at most one partially received frame between calls.
//
// The package does no I/O and keeps no state outside of Buffer, so it can be
// tested independently of any socket.
//
// A Buffer enforces a maximum frame size. A length prefix that exceeds it is
// reported as ErrMalformedFrame instead of attempting the allocation.
package framing
