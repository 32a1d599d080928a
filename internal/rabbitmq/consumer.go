package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler processes one delivery. Returning an error rejects it.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer manages message consumption from RabbitMQ
type Consumer struct {
	pool            *ChannelPool
	prefetchCount   int
	requeueOnError  bool
	handlerTimeout  time.Duration
	logger          *slog.Logger
	activeConsumers sync.Map
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithRequeueOnError requeues deliveries whose handler failed instead of
// dropping them
func WithRequeueOnError(requeue bool) ConsumerOption {
	return func(c *Consumer) {
		c.requeueOnError = requeue
	}
}

// WithHandlerTimeout bounds a single handler call
func WithHandlerTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = timeout
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a new consumer
func NewConsumer(pool *ChannelPool, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		pool:           pool,
		prefetchCount:  10,
		handlerTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// ConsumerInfo tracks an active subscription
type ConsumerInfo struct {
	Queue       string
	ConsumerTag string
	Channel     *PooledChannel
	Cancel      context.CancelFunc
	Done        chan struct{}
}

// Subscribe starts consuming from queue. Consumption stops when ctx is
// done, Unsubscribe is called or the channel closes; Done on the returned
// info is closed when that happens.
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler MessageHandler) (*ConsumerInfo, error) {
	ch, err := c.pool.Get(ctx)
	if err != nil {
		return nil, c.consumerError(queue, "subscribe", err)
	}

	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		c.pool.Put(ch)
		return nil, c.consumerError(queue, "qos", err)
	}

	tag := "netbridge-" + ch.ID()
	deliveries, err := ch.Consume(
		queue,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		c.pool.Put(ch)
		return nil, c.consumerError(queue, "consume", err)
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	info := &ConsumerInfo{
		Queue:       queue,
		ConsumerTag: tag,
		Channel:     ch,
		Cancel:      cancel,
		Done:        make(chan struct{}),
	}
	c.activeConsumers.Store(queue, info)

	go c.processMessages(consumerCtx, info, deliveries, handler)

	c.logger.Info("subscribed to queue",
		"queue", queue,
		"consumerTag", tag,
		"prefetchCount", c.prefetchCount,
	)
	return info, nil
}

func (c *Consumer) processMessages(ctx context.Context, info *ConsumerInfo, deliveries <-chan amqp.Delivery, handler MessageHandler) {
	defer func() {
		if !info.Channel.IsClosed() {
			if err := info.Channel.Cancel(info.ConsumerTag, false); err != nil {
				c.logger.Debug("failed to cancel consumer", "queue", info.Queue, "error", err)
			}
		}
		c.pool.Put(info.Channel)
		c.activeConsumers.CompareAndDelete(info.Queue, info)
		close(info.Done)
		c.logger.Info("consumer stopped", "queue", info.Queue)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", info.Queue)
				return
			}
			c.handleMessage(ctx, info.Queue, delivery, handler)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, queue string, delivery amqp.Delivery, handler MessageHandler) {
	msgCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	if err := handler(msgCtx, delivery); err != nil {
		c.logger.Warn("rejecting message",
			"queue", queue,
			"messageId", delivery.MessageId,
			"requeue", c.requeueOnError,
			"error", err,
		)
		if nackErr := delivery.Nack(false, c.requeueOnError); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr, "originalError", err)
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "queue", queue, "error", err)
	}
}

// Unsubscribe stops consuming from queue and waits for the consumer to exit
func (c *Consumer) Unsubscribe(queue string) error {
	value, ok := c.activeConsumers.Load(queue)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoConsumer, queue)
	}
	info := value.(*ConsumerInfo)
	info.Cancel()
	<-info.Done
	return nil
}

// UnsubscribeAll stops all active consumers
func (c *Consumer) UnsubscribeAll() {
	var wg sync.WaitGroup
	c.activeConsumers.Range(func(key, _ any) bool {
		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			if err := c.Unsubscribe(queue); err != nil {
				c.logger.Debug("failed to unsubscribe", "queue", queue, "error", err)
			}
		}(key.(string))
		return true
	})
	wg.Wait()
}

// ActiveConsumers returns the queues currently being consumed
func (c *Consumer) ActiveConsumers() []string {
	var queues []string
	c.activeConsumers.Range(func(key, _ any) bool {
		queues = append(queues, key.(string))
		return true
	})
	return queues
}

func (c *Consumer) consumerError(queue, op string, err error) *ConsumerError {
	return &ConsumerError{
		Queue:     queue,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}
