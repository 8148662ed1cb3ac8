// Package wire defines the CBOR wire format for camharness bus messages.
//
// Every packet exchanged between a bus client and a broker carries a
// single Envelope encoded as CBOR (RFC 8949) with integer keys.
//
// # Envelope Kinds
//
//   - Request: client to broker (hello, subscribe, advertise, call, ...)
//     or broker to service host (proxied call)
//   - Response: answer to a Request, correlated by MessageID
//   - Publish: a topic sample, in either direction
//   - Control: transport-level ping/pong/close
//
// Payloads are opaque CBOR byte strings. Topic samples carry an encoded
// frame.Frame; service payloads are whatever the service defines.
package wire
