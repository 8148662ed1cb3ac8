// Package bus is the messaging runtime the harness and the simulated camera
// run on: named nodes exchanging topic samples and service calls over a
// Graph, with callbacks drained by an Executor.
//
// # Structure
//
//   - Context: scoped runtime handle. Init acquires it, Shutdown releases
//     every node and the graph.
//   - Graph: the name, topic and service fabric. LocalGraph is in-process;
//     RemoteGraph talks to a broker over pkg/transport.
//   - Node: owns subscriptions, publishers, services and clients, plus a
//     callback queue.
//   - Executor: runs queued callbacks of its nodes on the goroutine that
//     calls Spin.
//
// # Delivery
//
// Samples arriving for a subscription are queued on the owning node with
// KEEP_LAST semantics: when depth samples are already pending for the
// subscription, the oldest is dropped. Callbacks never run concurrently
// within one executor.
//
// Service handlers also run on the server node's executor. Client calls
// complete through a Future that is resolved on the client node's
// executor, so Client.Call only returns while that executor is spinning.
package bus
