// Package subscription implements the topic subscription registry used by
// the bus graph and the broker.
//
// A Subscription binds a topic to a delivery callback owned by a node (or
// a remote connection). Dispatch fans a published sample out to every
// active subscription on its topic, stamping a per-topic sequence number.
//
// # Lifecycle
//
// Unsubscribe deactivates a subscription before removing it, so a Dispatch
// that has already snapshotted the subscriber list skips it. Callers that
// need a stronger guarantee (no callback runs after unsubscribe returns)
// must synchronize with their own delivery path.
//
// Subscriptions do not survive the owner: UnsubscribeOwner removes every
// subscription of a node or connection at once.
package subscription
