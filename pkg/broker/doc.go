// Package broker hosts a bus graph on the network.
//
// A Broker owns a bus.LocalGraph and accepts transport connections from
// bus.RemoteGraph clients. Each connection is a peer: its nodes, topic
// interest and services are registered on the local graph under the
// peer's identity, and are removed when the peer disconnects.
//
// Publishes are fanned out by the local graph, so remote subscribers and
// nodes living in the broker process (attached with bus.WithGraph) see
// the same stream. Calls to a service hosted by a peer are forwarded to
// that peer and the answer, success or failure, is relayed unchanged.
package broker
