// Package session owns the datagram transport between a controller and a
// controllee.
//
// Ownership boundary:
// - endpoint resolution and socket lifetime
// - send / await correlated ack / resend exchange loop
// - session-scoped sequence and message id counters
// - retry backoff and in-flight exchange tracking
package session
