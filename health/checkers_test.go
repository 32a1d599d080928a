package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/glimte/netbridge/bridge"
	"github.com/glimte/netbridge/internal/reliability"
)

type fakeEndpoint struct {
	connected bool
	awaiting  bool
}

func (f fakeEndpoint) IsConnected() bool   { return f.connected }
func (f fakeEndpoint) AwaitingReply() bool { return f.awaiting }
func (f fakeEndpoint) Endpoint() string    { return "tcp://remote:5555" }

type fakeConnection struct{ connected bool }

func (f fakeConnection) Name() string      { return "amqp" }
func (f fakeConnection) IsConnected() bool { return f.connected }

type fakeController struct {
	running bool
	stats   bridge.Stats
}

func (f fakeController) Running() bool       { return f.running }
func (f fakeController) Stats() bridge.Stats { return f.stats }

func TestEndpointChecker(t *testing.T) {
	up := NewEndpointChecker(fakeEndpoint{connected: true, awaiting: true}).Check(context.Background())
	assert.Equal(t, "endpoint", up.Name)
	assert.Equal(t, StatusHealthy, up.Status)
	assert.Equal(t, "tcp://remote:5555", up.Details["endpoint"])
	assert.Equal(t, true, up.Details["awaitingReply"])

	down := NewEndpointChecker(fakeEndpoint{}).Check(context.Background())
	assert.Equal(t, StatusDegraded, down.Status)
}

func TestBreakerChecker(t *testing.T) {
	cb := reliability.NewCircuitBreaker(
		reliability.WithName("zmq-reconnect"),
		reliability.WithFailureThreshold(1),
		reliability.WithTimeout(time.Minute))
	checker := NewBreakerChecker(cb)
	assert.Equal(t, "breaker:zmq-reconnect", checker.Name())

	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	_ = cb.Execute(context.Background(), func() error { return errors.New("refused") })
	result := checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "open", result.Details["state"])
}

func TestConnectionChecker(t *testing.T) {
	checker := NewConnectionChecker(fakeConnection{connected: true})
	assert.Equal(t, "pubsub:amqp", checker.Name())
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewConnectionChecker(fakeConnection{}).Check(context.Background()).Status)
}

func TestControllerChecker(t *testing.T) {
	running := NewControllerChecker(fakeController{running: true, stats: bridge.Stats{Sent: 3, DecodeFailures: 1}})
	result := running.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, int64(3), result.Details["sent"])
	assert.Equal(t, int64(1), result.Details["decodeFailures"])

	stopped := NewControllerChecker(fakeController{})
	assert.Equal(t, StatusUnhealthy, stopped.Check(context.Background()).Status)
}

func TestMemoryChecker(t *testing.T) {
	result := NewMemoryChecker(500, 1000).Check(context.Background())
	assert.Equal(t, "memory", result.Name)
	assert.Contains(t, result.Details, "goroutines")
	assert.Contains(t, result.Details, "memory_used_mb")

	assert.Equal(t, StatusUnhealthy, NewMemoryChecker(-2, -1).Check(context.Background()).Status)
	assert.Equal(t, StatusDegraded, NewMemoryChecker(-1, 1<<20).Check(context.Background()).Status)
}
