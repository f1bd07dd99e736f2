// Package common provides data structures and utilities shared across the dNet
// transport: configuration, error kinds and logging.
//
// The package focuses on:
//   - Configuration structures for the client transport and the peer server
//   - Sentinel errors describing every failure kind of the transport
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - ClientConfig: socket options, polling intervals and limits used by the
//     transport manager and its receive worker.
//
//   - ServerConfig: listen endpoint, limits and observability settings of the peer
//     server.
//
//   - Errors: ErrAddressResolution, ErrSocketCreate, ErrConnectFailed, ErrThreadStart,
//     ErrSendFailed, ErrPeerClosed, ErrMalformedFrame, ErrNotConnected and
//     ErrAlreadyStarted. Errors returned by the transport wrap one of these together
//     with the underlying cause, so both can be matched with errors.Is.
//
//   - Logger: consistent "LEVEL | package | message" formatting for every package
//     that obtains its logger through logger.GetLogger.
package common
