// Package transport carries bus envelopes between a broker and its clients.
//
// The transport layer handles:
//   - TCP connections, optionally wrapped in TLS 1.3
//   - Length-prefixed packet framing
//   - Keep-alive ping/pong for connection liveness
//   - Envelope encode/decode and protocol event capture
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│    CBOR Envelopes (wire)       │
//	├────────────────────────────────┤
//	│  Length-Prefix Packets (4B)    │
//	├────────────────────────────────┤
//	│     TLS 1.3 (optional)         │
//	├────────────────────────────────┤
//	│            TCP                 │
//	└────────────────────────────────┘
//
// # Keep-Alive
//
// Clients ping the broker; the broker answers with pongs. A client that
// misses MaxMissedPongs consecutive pongs closes the connection.
package transport
