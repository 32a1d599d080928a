package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/glimte/netbridge/config"
	"github.com/glimte/netbridge/internal/reliability"
	"github.com/glimte/netbridge/messaging"
	amqptransport "github.com/glimte/netbridge/transports/rabbitmq"
	mqtttransport "github.com/glimte/netbridge/transports/mqtt"
)

type pubSub struct {
	source messaging.Source
	sink   messaging.Sink
	// input is the bus fed from stdin in memory mode
	input *messaging.MemoryBus
}

func openPubSub(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pubSub, error) {
	switch cfg.PubSub {
	case config.PubSubMemory:
		bus := messaging.NewMemoryBus()
		return &pubSub{source: bus, sink: newLineSink(os.Stdout), input: bus}, nil

	case config.PubSubAMQP:
		var t *amqptransport.Transport
		err := reliability.RetryWithBackoff(ctx, func() error {
			var err error
			t, err = amqptransport.NewTransport(ctx, cfg.AMQP.URL,
				amqptransport.WithExchange(cfg.AMQP.Exchange),
				amqptransport.WithInboundKey(cfg.AMQP.InboundKey),
				amqptransport.WithOutboundKey(cfg.AMQP.OutboundKey),
				amqptransport.WithQueueDepth(cfg.AMQP.QueueDepth),
				amqptransport.WithLogger(logger))
			if err != nil {
				logger.Warn("amqp broker not reachable", "error", err)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return &pubSub{source: t, sink: t}, nil

	case config.PubSubMQTT:
		var t *mqtttransport.Transport
		err := reliability.RetryWithBackoff(ctx, func() error {
			var err error
			t, err = mqtttransport.NewTransport(ctx, cfg.MQTT.Broker,
				mqtttransport.WithInboundTopic(cfg.MQTT.InboundTopic),
				mqtttransport.WithOutboundTopic(cfg.MQTT.OutboundTopic),
				mqtttransport.WithQoS(cfg.MQTT.QoS),
				mqtttransport.WithLogger(logger))
			if err != nil {
				logger.Warn("mqtt broker not reachable", "broker", cfg.MQTT.Broker, "error", err)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return &pubSub{source: t, sink: t}, nil
	}

	return nil, fmt.Errorf("%w: unknown pubsub mode %q", config.ErrInvalidConfig, cfg.PubSub)
}
