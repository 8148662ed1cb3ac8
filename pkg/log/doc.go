// Package log provides protocol event capture for the camharness bus.
//
// This is separate from operational logging (slog): protocol capture
// records every packet, decoded envelope, control message and state
// change as a machine-readable CBOR event stream.
//
// # Basic Usage
//
//	// Console output during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	fl, _ := log.NewFileLogger("/tmp/broker.clog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
//   - Transport: raw packets (PacketEvent)
//   - Wire: decoded envelopes (MessageEvent)
//   - Bus: node, subscription and connection state (StateChangeEvent)
//
// Control messages and errors have dedicated event types. The
// camharness-log command views, filters and exports capture files.
package log
