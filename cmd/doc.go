// Package cmd implements the command-line interface of dNet. It provides a small
// command tree for trying the transport against a peer and for running that peer.
//
// The package is organized into several subpackages:
//
//   - connect: Interactive client, sends stdin lines as packets and prints replies
//   - serve: Runs the peer server (echo) with optional Prometheus metrics
//   - perf: Round-trip latency benchmark against a running peer
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable DNET_<FLAG> (dashes become
// underscores), in a .env or .env.local file, or in the file given with --config.
//
// See dnet -help for a list of all commands.
package cmd
