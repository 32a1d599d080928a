package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/glimte/netbridge/bridge"
	"github.com/glimte/netbridge/internal/reliability"
)

// Endpoint is the view of the remote transport a checker needs
type Endpoint interface {
	IsConnected() bool
	AwaitingReply() bool
	Endpoint() string
}

// EndpointChecker reports the remote request/reply connection. A lost
// connection is degraded, not unhealthy: the bridge keeps running and
// reconnects on the next send.
type EndpointChecker struct {
	endpoint Endpoint
}

// NewEndpointChecker creates a checker for the remote endpoint
func NewEndpointChecker(endpoint Endpoint) *EndpointChecker {
	return &EndpointChecker{endpoint: endpoint}
}

func (c *EndpointChecker) Name() string {
	return "endpoint"
}

func (c *EndpointChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]any{
			"endpoint":      c.endpoint.Endpoint(),
			"awaitingReply": c.endpoint.AwaitingReply(),
		},
	}

	if c.endpoint.IsConnected() {
		result.Status = StatusHealthy
		result.Message = "connected"
	} else {
		result.Status = StatusDegraded
		result.Message = "disconnected, will reconnect on next send"
	}
	result.Duration = time.Since(start)
	return result
}

// BreakerChecker reports the circuit breaker guarding reconnects
type BreakerChecker struct {
	breaker *reliability.CircuitBreaker
}

// NewBreakerChecker creates a checker for cb
func NewBreakerChecker(cb *reliability.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{breaker: cb}
}

func (c *BreakerChecker) Name() string {
	return "breaker:" + c.breaker.Name()
}

func (c *BreakerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	m := c.breaker.GetMetrics()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]any{
			"state":           m.State.String(),
			"totalCalls":      m.TotalCalls,
			"totalFailures":   m.TotalFailures,
			"totalRejected":   m.TotalRejected,
			"currentFailures": m.CurrentFailures,
		},
	}

	switch m.State {
	case reliability.StateOpen:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("circuit open after %d consecutive failures", m.CurrentFailures)
	case reliability.StateHalfOpen:
		result.Status = StatusDegraded
		result.Message = "circuit half-open, probing"
	default:
		result.Status = StatusHealthy
		result.Message = "circuit closed"
	}
	result.Duration = time.Since(start)
	return result
}

// Connection is any pub/sub transport that can report its broker session
type Connection interface {
	Name() string
	IsConnected() bool
}

// ConnectionChecker reports a pub/sub broker connection
type ConnectionChecker struct {
	conn Connection
}

// NewConnectionChecker creates a checker for conn
func NewConnectionChecker(conn Connection) *ConnectionChecker {
	return &ConnectionChecker{conn: conn}
}

func (c *ConnectionChecker) Name() string {
	return "pubsub:" + c.conn.Name()
}

func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Timestamp: start}
	if c.conn.IsConnected() {
		result.Status = StatusHealthy
		result.Message = "connected"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "broker connection lost"
	}
	result.Duration = time.Since(start)
	return result
}

// Controller is the view of the bridge controller a checker needs
type Controller interface {
	Running() bool
	Stats() bridge.Stats
}

// ControllerChecker reports whether the tick loop runs and exposes the
// controller counters
type ControllerChecker struct {
	controller Controller
}

// NewControllerChecker creates a checker for the bridge controller
func NewControllerChecker(controller Controller) *ControllerChecker {
	return &ControllerChecker{controller: controller}
}

func (c *ControllerChecker) Name() string {
	return "controller"
}

func (c *ControllerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	stats := c.controller.Stats()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]any{
			"sent":            stats.Sent,
			"sendFailures":    stats.SendFailures,
			"received":        stats.Received,
			"receiveFailures": stats.ReceiveFailures,
			"decodeFailures":  stats.DecodeFailures,
			"republished":     stats.Republished,
			"publishFailures": stats.PublishFailures,
			"emptyTicks":      stats.EmptyTicks,
		},
	}
	if c.controller.Running() {
		result.Status = StatusHealthy
		result.Message = "tick loop running"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "tick loop stopped"
	}
	result.Duration = time.Since(start)
	return result
}

// MemoryChecker flags runaway goroutine counts
type MemoryChecker struct {
	warningGoroutines  int
	criticalGoroutines int
}

// NewMemoryChecker creates a checker with goroutine thresholds
func NewMemoryChecker(warningGoroutines, criticalGoroutines int) *MemoryChecker {
	return &MemoryChecker{
		warningGoroutines:  warningGoroutines,
		criticalGoroutines: criticalGoroutines,
	}
}

func (c *MemoryChecker) Name() string {
	return "memory"
}

func (c *MemoryChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]any{
			"memory_used_mb": float64(m.Sys) / 1024 / 1024,
			"gc_runs":        m.NumGC,
			"goroutines":     goroutines,
		},
	}

	switch {
	case goroutines > c.criticalGoroutines:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", goroutines)
	case goroutines > c.warningGoroutines:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "memory usage is normal"
	}
	result.Duration = time.Since(start)
	return result
}
