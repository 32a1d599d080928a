// Package zmq is the transport adapter of the bridge: a single ZeroMQ REQ
// socket to one remote endpoint.
//
// The adapter moves through Disconnected, Connecting, Connected, Sending and
// Receiving. A fatal transport error drops it back to Disconnected; the next
// Send then attempts exactly one reconnect, guarded by a circuit breaker.
//
// Strict alternation is enforced: Send fails with ErrReplyPending while a
// reply is outstanding. Receive never blocks longer than its timeout and
// reports "no reply yet" as an empty result rather than an error.
package zmq
