// Package harness turns the asynchronous image stream of a camera node
// into a synchronous test API.
//
// A TestNode owns one bus node and a dedicated executor goroutine. Frames
// received on <camera>/image_raw are decoded and appended to a Queue; test
// code takes them out with WaitForFrame, blocking up to a timeout.
// CallAndWait blocks on a service call until the executor resolves it and
// returns remote failures unchanged.
//
// At most one image subscription exists at a time. Unsubscribing waits
// until no callback for the old subscription can still run (bounded by
// the grace interval) and then empties the queue, so frames never leak
// from one subscription into the next.
//
// Setup wires the whole runtime for a Go test: bus context, identifier,
// simulated camera and test node, all released through t.Cleanup.
package harness
