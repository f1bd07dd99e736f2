// Package server implements the peer side of the dNet transport: a TCP listener that
// speaks the same length-prefixed framing as the client transport.
//
// Each accepted connection is a session served by its own goroutine. Inbound bytes
// are reassembled with a framing.Buffer, every complete packet is passed to the
// HandleFunc and the returned packets are written back as frames. A session ends when
// the client disconnects, stays silent longer than the configured timeout or sends a
// frame larger than the configured maximum.
//
// The server is used as the far end for `dnet serve`, the round-trip benchmark and the
// transport tests. EchoHandler answers every packet with itself.
package server
