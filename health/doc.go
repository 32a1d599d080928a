// Package health provides health checks and the /healthz, /readyz and
// /livez HTTP endpoints for a running bridge.
package health
