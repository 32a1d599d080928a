package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/glimte/netbridge/contracts"
	"github.com/glimte/netbridge/messaging"
	"github.com/glimte/netbridge/serialization"
)

var (
	// ErrTimeout is returned when the broker does not acknowledge in time
	ErrTimeout = errors.New("mqtt: operation timeout")
	// ErrNotConnected is returned when the client has no broker session
	ErrNotConnected = errors.New("mqtt: not connected")
)

// Transport carries vehicle states over MQTT topics. It is a
// messaging.Source for the inbound topic and a messaging.Sink for the
// outbound topic.
type Transport struct {
	client           paho.Client
	broker           string
	clientID         string
	inboundTopic     string
	outboundTopic    string
	qos              byte
	connectTimeout   time.Duration
	operationTimeout time.Duration
	codec            serialization.Codec
	logger           *slog.Logger

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

// WithClientID sets the MQTT client identifier
func WithClientID(id string) Option {
	return func(t *Transport) {
		t.clientID = id
	}
}

// WithInboundTopic sets the topic local states arrive on
func WithInboundTopic(topic string) Option {
	return func(t *Transport) {
		t.inboundTopic = topic
	}
}

// WithOutboundTopic sets the topic remote states are published on
func WithOutboundTopic(topic string) Option {
	return func(t *Transport) {
		t.outboundTopic = topic
	}
}

// WithQoS sets the quality of service for subscribe and publish
func WithQoS(qos byte) Option {
	return func(t *Transport) {
		t.qos = qos
	}
}

// WithConnectTimeout bounds the initial connect
func WithConnectTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.connectTimeout = timeout
	}
}

// WithOperationTimeout bounds subscribe, unsubscribe and publish
func WithOperationTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.operationTimeout = timeout
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

// WithClient uses an existing client instead of building one for the broker
func WithClient(client paho.Client) Option {
	return func(t *Transport) {
		t.client = client
	}
}

// NewTransport connects to broker (for example tcp://localhost:1883)
func NewTransport(ctx context.Context, broker string, options ...Option) (*Transport, error) {
	t := &Transport{
		broker:           broker,
		clientID:         "netbridge-" + uuid.NewString()[:8],
		inboundTopic:     "vehicle_state",
		outboundTopic:    "remote_vehicle_state",
		connectTimeout:   10 * time.Second,
		operationTimeout: 5 * time.Second,
		codec:            serialization.JSONCodec{},
		logger:           slog.Default(),
	}
	for _, opt := range options {
		opt(t)
	}

	if t.client == nil {
		opts := paho.NewClientOptions().
			AddBroker(broker).
			SetClientID(t.clientID).
			SetAutoReconnect(true).
			SetMaxReconnectInterval(30 * time.Second).
			SetConnectTimeout(t.connectTimeout).
			SetOrderMatters(true).
			SetOnConnectHandler(t.onConnect).
			SetConnectionLostHandler(t.onConnectionLost)
		t.client = paho.NewClient(opts)
	}

	connectCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()
	if err := wait(connectCtx, t.client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", broker, err)
	}

	t.logger.Info("connected to MQTT broker", "broker", broker, "clientId", t.clientID)
	return t, nil
}

// Subscribe delivers decoded states from the inbound topic to handler
// until ctx is done. Malformed payloads are logged and dropped.
func (t *Transport) Subscribe(ctx context.Context, handler messaging.StateHandler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return messaging.ErrClosed
	}
	t.handler = handler
	t.subCtx = ctx
	t.mu.Unlock()

	if err := t.subscribe(ctx); err != nil {
		return err
	}

	context.AfterFunc(ctx, func() {
		t.mu.Lock()
		closed := t.closed
		t.handler = nil
		t.mu.Unlock()
		if !closed {
			t.client.Unsubscribe(t.inboundTopic)
		}
	})

	t.logger.Info("subscribed to topic", "topic", t.inboundTopic, "qos", t.qos)
	return nil
}

// Publish sends state on the outbound topic
func (t *Transport) Publish(ctx context.Context, state contracts.VehicleState) error {
	payload, err := t.codec.Encode(state)
	if err != nil {
		return err
	}
	if !t.client.IsConnected() {
		return fmt.Errorf("failed to publish to %s: %w", t.outboundTopic, ErrNotConnected)
	}

	opCtx, cancel := context.WithTimeout(ctx, t.operationTimeout)
	defer cancel()
	if err := wait(opCtx, t.client.Publish(t.outboundTopic, t.qos, false, payload)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.outboundTopic, err)
	}
	return nil
}

// IsConnected reports whether the broker session is up
func (t *Transport) IsConnected() bool {
	return t.client.IsConnected()
}

// Name identifies the transport in health reports
func (t *Transport) Name() string {
	return "mqtt"
}

// Close unsubscribes and disconnects
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subscribed := t.handler != nil
	t.handler = nil
	t.mu.Unlock()

	if subscribed && t.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), t.operationTimeout)
		if err := wait(ctx, t.client.Unsubscribe(t.inboundTopic)); err != nil {
			t.logger.Debug("failed to unsubscribe", "topic", t.inboundTopic, "error", err)
		}
		cancel()
	}
	t.client.Disconnect(250)
	t.logger.Info("disconnected from MQTT broker", "broker", t.broker)
	return nil
}

func (t *Transport) subscribe(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, t.operationTimeout)
	defer cancel()
	if err := wait(opCtx, t.client.Subscribe(t.inboundTopic, t.qos, t.handleMessage)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", t.inboundTopic, err)
	}
	return nil
}

func (t *Transport) handleMessage(_ paho.Client, msg paho.Message) {
	t.mu.Lock()
	handler, ctx := t.handler, t.subCtx
	t.mu.Unlock()

	if handler == nil || ctx.Err() != nil {
		return
	}

	state, err := t.codec.Decode(msg.Payload())
	if err != nil {
		t.logger.Warn("dropping malformed message",
			"kind", contracts.KindDecode,
			"topic", msg.Topic(),
			"error", err)
		return
	}
	handler(ctx, state)
}

// onConnect restores the subscription after an automatic reconnect
func (t *Transport) onConnect(paho.Client) {
	t.mu.Lock()
	handler, ctx, closed := t.handler, t.subCtx, t.closed
	t.mu.Unlock()

	if closed || handler == nil || ctx.Err() != nil {
		return
	}
	if err := t.subscribe(ctx); err != nil {
		t.logger.Error("failed to resubscribe after reconnect", "topic", t.inboundTopic, "error", err)
		return
	}
	t.logger.Info("resubscribed after reconnect", "topic", t.inboundTopic)
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.logger.Warn("connection to MQTT broker lost", "broker", t.broker, "error", err)
}

// wait blocks until token completes or ctx is done
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
