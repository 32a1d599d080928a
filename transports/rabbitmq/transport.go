package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/netbridge/contracts"
	"github.com/glimte/netbridge/internal/rabbitmq"
	"github.com/glimte/netbridge/messaging"
	"github.com/glimte/netbridge/serialization"
)

const (
	// MessageType is set on every published message
	MessageType = "vehicle_state"
)

// Transport carries vehicle states over a RabbitMQ topic exchange. It
// consumes local states from the inbound routing key and publishes
// republished remote states on the outbound routing key.
type Transport struct {
	manager   *rabbitmq.ConnectionManager
	pool      *rabbitmq.ChannelPool
	topology  *rabbitmq.TopologyManager
	publisher *rabbitmq.Publisher
	consumer  *rabbitmq.Consumer
	codec     serialization.Codec
	logger    *slog.Logger

	exchange    string
	queue       string
	inboundKey  string
	outboundKey string
	queueDepth  int
	connOpts    []rabbitmq.ConnectionOption

	mu      sync.Mutex
	handler messaging.StateHandler
	subCtx  context.Context
	closed  bool
}

var (
	_ messaging.Source = (*Transport)(nil)
	_ messaging.Sink   = (*Transport)(nil)
)

// Option configures the transport
type Option func(*Transport)

// WithExchange sets the topic exchange name
func WithExchange(name string) Option {
	return func(t *Transport) {
		t.exchange = name
	}
}

// WithQueue sets the inbound queue name
func WithQueue(name string) Option {
	return func(t *Transport) {
		t.queue = name
	}
}

// WithInboundKey sets the routing key local states arrive on
func WithInboundKey(key string) Option {
	return func(t *Transport) {
		t.inboundKey = key
	}
}

// WithOutboundKey sets the routing key remote states are published on
func WithOutboundKey(key string) Option {
	return func(t *Transport) {
		t.outboundKey = key
	}
}

// WithQueueDepth caps the inbound queue; 0 leaves it unbounded
func WithQueueDepth(depth int) Option {
	return func(t *Transport) {
		t.queueDepth = depth
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithCodec replaces the JSON codec
func WithCodec(codec serialization.Codec) Option {
	return func(t *Transport) {
		t.codec = codec
	}
}

// WithConnectionOptions passes options to the connection manager
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) Option {
	return func(t *Transport) {
		t.connOpts = append(t.connOpts, opts...)
	}
}

func newTransport(options ...Option) *Transport {
	t := &Transport{
		codec:       serialization.JSONCodec{},
		logger:      slog.Default(),
		exchange:    "vehicle",
		inboundKey:  "vehicle_state",
		outboundKey: "remote_vehicle_state",
		queueDepth:  10,
	}
	for _, opt := range options {
		opt(t)
	}
	if t.queue == "" {
		t.queue = "netbridge." + t.inboundKey
	}
	return t
}

// NewTransport connects to the broker at url and declares the exchange,
// the inbound queue and its binding
func NewTransport(ctx context.Context, url string, options ...Option) (*Transport, error) {
	t := newTransport(options...)

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(t.logger)}, t.connOpts...)
	t.manager = rabbitmq.NewConnectionManager(url, connOpts...)
	if err := t.manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pool, err := rabbitmq.NewChannelPool(t.manager)
	if err != nil {
		t.manager.Close()
		return nil, fmt.Errorf("failed to create channel pool: %w", err)
	}
	t.pool = pool
	t.topology = rabbitmq.NewTopologyManager(pool)
	t.publisher = rabbitmq.NewPublisher(pool, rabbitmq.WithPublisherLogger(t.logger))
	t.consumer = rabbitmq.NewConsumer(pool,
		rabbitmq.WithPrefetchCount(t.queueDepth),
		rabbitmq.WithConsumerLogger(t.logger))

	if err := t.declare(ctx); err != nil {
		pool.Close()
		t.manager.Close()
		return nil, err
	}

	t.manager.AddStateListener(t)
	return t, nil
}

// Subscribe consumes the inbound queue and hands each decoded state to
// handler. Malformed messages are logged and dropped.
func (t *Transport) Subscribe(ctx context.Context, handler messaging.StateHandler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return messaging.ErrClosed
	}
	t.handler = handler
	t.subCtx = ctx
	t.mu.Unlock()

	if _, err := t.consumer.Subscribe(ctx, t.queue, t.deliveryHandler(handler)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", t.queue, err)
	}
	return nil
}

// Publish sends state on the outbound routing key
func (t *Transport) Publish(ctx context.Context, state contracts.VehicleState) error {
	msg, err := t.newPublishing(state)
	if err != nil {
		return err
	}
	return t.publisher.Publish(ctx, t.exchange, t.outboundKey, msg)
}

// IsConnected reports whether the broker connection is up
func (t *Transport) IsConnected() bool {
	return t.manager != nil && t.manager.IsConnected()
}

// Name identifies the transport in health reports
func (t *Transport) Name() string {
	return "amqp"
}

// Close stops consuming and closes the connection
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.consumer.UnsubscribeAll()
	t.pool.Close()
	return t.manager.Close()
}

// OnConnected redeclares topology and resumes consumption after a reconnect
func (t *Transport) OnConnected() {
	t.mu.Lock()
	handler, ctx, closed := t.handler, t.subCtx, t.closed
	t.mu.Unlock()

	if closed || handler == nil || ctx.Err() != nil {
		return
	}

	declareCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := t.declare(declareCtx); err != nil {
		t.logger.Error("failed to redeclare topology after reconnect", "error", err)
		return
	}
	if _, err := t.consumer.Subscribe(ctx, t.queue, t.deliveryHandler(handler)); err != nil {
		t.logger.Error("failed to resume consuming after reconnect", "queue", t.queue, "error", err)
		return
	}
	t.logger.Info("resumed consuming after reconnect", "queue", t.queue)
}

// OnDisconnected implements rabbitmq.ConnectionStateListener
func (t *Transport) OnDisconnected(err error) {
	t.logger.Warn("amqp transport disconnected", "error", err)
}

// OnReconnecting implements rabbitmq.ConnectionStateListener
func (t *Transport) OnReconnecting(attempt int) {
	t.logger.Debug("amqp transport reconnecting", "attempt", attempt)
}

func (t *Transport) declare(ctx context.Context) error {
	topo := rabbitmq.VehicleStateTopology(t.exchange, t.queue, t.inboundKey, t.queueDepth)
	if err := t.topology.DeclareTopology(ctx, topo); err != nil {
		return fmt.Errorf("failed to declare topology: %w", err)
	}
	return nil
}

func (t *Transport) deliveryHandler(handler messaging.StateHandler) rabbitmq.MessageHandler {
	return func(ctx context.Context, delivery amqp.Delivery) error {
		state, err := t.codec.Decode(delivery.Body)
		if err != nil {
			t.logger.Warn("dropping malformed message",
				"kind", contracts.KindDecode,
				"queue", t.queue,
				"messageId", delivery.MessageId,
				"error", err)
			return nil
		}
		handler(ctx, state)
		return nil
	}
}

func (t *Transport) newPublishing(state contracts.VehicleState) (amqp.Publishing, error) {
	body, err := t.codec.Encode(state)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  t.codec.ContentType(),
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Type:         MessageType,
		AppId:        "netbridge",
		Body:         body,
	}, nil
}
