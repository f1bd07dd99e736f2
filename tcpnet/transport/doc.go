// Package transport defines the contracts between the dNet transport and the
// networking stack that sits on top of it. The upper stack (channel multiplexing,
// replication, acknowledgement) only ever sees raw packets; it never sees frames or
// sockets.
//
// The package focuses on:
//   - Plain capability interfaces instead of a host base type, so a host
//     integration layer can adapt them to whatever object model it uses
//   - A tick driven contract: the surrounding scheduler owns time
//
// Key Components:
//
//   - PacketConsumer: receives every decoded packet, in arrival order, on the
//     owning context.
//
//   - ConnectionObserver: optional extension of a PacketConsumer that is told when
//     the connection is lost.
//
//   - PacketProducer: what upper layers call to send packets and to close the
//     connection.
//
//   - TickDriven: what the surrounding scheduler calls once per frame.
//
// The TCP implementation lives in the tcp subpackage.
package transport
