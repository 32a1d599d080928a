// Package reliability provides the failure containment primitives used by the
// bridge: a circuit breaker that keeps reconnect attempts from turning into a
// retry storm, and retry policies for startup connections to the pub/sub side.
package reliability
