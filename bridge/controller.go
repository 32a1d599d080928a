package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/netbridge/contracts"
	"github.com/glimte/netbridge/messaging"
	"github.com/glimte/netbridge/serialization"
)

const (
	// DefaultTickPeriod is the receive loop period
	DefaultTickPeriod = 100 * time.Millisecond
)

var (
	// ErrAlreadyRunning is returned when Run is called on a running controller
	ErrAlreadyRunning = errors.New("bridge: controller already running")
)

// Transport is the request/reply channel to the remote endpoint
type Transport interface {
	// Send writes one request. The payload is lost on error.
	Send(ctx context.Context, payload []byte) error

	// Receive waits up to timeout for a reply. It returns nil, nil when no
	// reply is available.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Controller moves vehicle states between the pub/sub side and the remote
// endpoint. Local events are encoded and sent, and each tick polls for a
// reply that is decoded and republished. Failures are logged and counted;
// none of them stop the controller.
type Controller struct {
	transport      Transport
	sink           messaging.Sink
	codec          serialization.Codec
	logger         *slog.Logger
	tickPeriod     time.Duration
	receiveTimeout time.Duration

	// mu serializes every call into the transport
	mu      sync.Mutex
	stats   counters
	running atomic.Bool
}

// Option configures the Controller
type Option func(*Controller)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithTickPeriod sets how often Run polls for replies
func WithTickPeriod(period time.Duration) Option {
	return func(c *Controller) {
		c.tickPeriod = period
	}
}

// WithReceiveTimeout bounds each tick's receive. Values above the tick
// period are clamped to it.
func WithReceiveTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.receiveTimeout = timeout
	}
}

// WithCodec replaces the JSON codec
func WithCodec(codec serialization.Codec) Option {
	return func(c *Controller) {
		c.codec = codec
	}
}

// NewController creates a controller that sends over transport and
// republishes replies to sink
func NewController(transport Transport, sink messaging.Sink, options ...Option) *Controller {
	c := &Controller{
		transport:  transport,
		sink:       sink,
		codec:      serialization.JSONCodec{},
		logger:     slog.Default(),
		tickPeriod: DefaultTickPeriod,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.tickPeriod <= 0 {
		c.tickPeriod = DefaultTickPeriod
	}
	if c.receiveTimeout <= 0 || c.receiveTimeout > c.tickPeriod {
		c.receiveTimeout = c.tickPeriod
	}
	if c.sink == nil {
		c.sink = messaging.Discard
	}

	return c
}

// OnVehicleStateEvent encodes state and sends it to the remote endpoint.
// It has the messaging.StateHandler signature so it can be subscribed to a
// Source directly.
func (c *Controller) OnVehicleStateEvent(ctx context.Context, state contracts.VehicleState) {
	payload, err := c.codec.Encode(state)
	if err != nil {
		c.stats.sendFailures.Add(1)
		c.logFailure(ctx, "dropping vehicle state", contracts.KindSend, err)
		return
	}

	c.mu.Lock()
	err = c.transport.Send(ctx, payload)
	c.mu.Unlock()

	if err != nil {
		c.stats.sendFailures.Add(1)
		c.logFailure(ctx, "failed to send vehicle state", contracts.KindSend, err, "size", len(payload))
		return
	}

	c.stats.sent.Add(1)
	c.logger.Debug("sent vehicle state", "size", len(payload))
}

// OnTick polls the transport once and republishes a decoded reply
func (c *Controller) OnTick(ctx context.Context) {
	c.mu.Lock()
	payload, err := c.transport.Receive(ctx, c.receiveTimeout)
	c.mu.Unlock()

	if err != nil {
		c.stats.receiveFailures.Add(1)
		c.logFailure(ctx, "failed to receive reply", contracts.KindReceive, err)
		return
	}
	if len(payload) == 0 {
		c.stats.emptyTicks.Add(1)
		return
	}
	c.stats.received.Add(1)

	state, err := c.codec.Decode(payload)
	if err != nil {
		c.stats.decodeFailures.Add(1)
		c.logFailure(ctx, "discarding malformed reply", contracts.KindDecode, err, "size", len(payload))
		return
	}

	c.logger.Debug("received vehicle state",
		"x", state.PositionX,
		"y", state.PositionY,
		"yaw", state.Yaw)

	if err := c.sink.Publish(ctx, state); err != nil {
		c.stats.publishFailures.Add(1)
		c.logFailure(ctx, "failed to republish vehicle state", contracts.KindPublish, err)
		return
	}
	c.stats.republished.Add(1)
}

// Run calls OnTick every tick period until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	ticker := time.NewTicker(c.tickPeriod)
	defer ticker.Stop()

	c.logger.Info("bridge controller started",
		"tickPeriod", c.tickPeriod,
		"receiveTimeout", c.receiveTimeout)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("bridge controller stopped")
			return ctx.Err()
		case <-ticker.C:
			c.OnTick(ctx)
		}
	}
}

// Running reports whether Run is active
func (c *Controller) Running() bool {
	return c.running.Load()
}

// TickPeriod returns the effective tick period
func (c *Controller) TickPeriod() time.Duration {
	return c.tickPeriod
}

// ReceiveTimeout returns the effective per-tick receive bound
func (c *Controller) ReceiveTimeout() time.Duration {
	return c.receiveTimeout
}

// Stats returns a snapshot of the controller counters
func (c *Controller) Stats() Stats {
	return c.stats.snapshot()
}

// logFailure is the one place controller failures are reported. Shutdown
// cancellations are not failures and only show at debug.
func (c *Controller) logFailure(ctx context.Context, msg string, kind contracts.ErrorKind, err error, attrs ...any) {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		c.logger.Debug(msg, append([]any{"kind", kind, "error", err}, attrs...)...)
		return
	}
	if k := contracts.KindOf(err); k != contracts.KindUnknown && k != kind {
		attrs = append(attrs, "cause", k)
	}
	c.logger.Error(msg, append([]any{"kind", kind, "error", err}, attrs...)...)
}
