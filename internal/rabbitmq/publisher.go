package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/netbridge/internal/reliability"
)

// Publisher publishes messages with publisher confirms
type Publisher struct {
	pool           *ChannelPool
	confirmTimeout time.Duration
	retryPolicy    reliability.RetryPolicy
	logger         *slog.Logger
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmTimeout sets how long to wait for a broker confirm
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithPublishRetries sets how many times a failed publish is retried
func WithPublishRetries(retries int) PublisherOption {
	return func(p *Publisher) {
		p.retryPolicy = reliability.NewExponentialBackoff(100*time.Millisecond, 2*time.Second, 2.0, retries)
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a new publisher
func NewPublisher(pool *ChannelPool, options ...PublisherOption) *Publisher {
	p := &Publisher{
		pool:           pool,
		confirmTimeout: 5 * time.Second,
		retryPolicy:    reliability.NewExponentialBackoff(100*time.Millisecond, 2*time.Second, 2.0, 2),
		logger:         slog.Default(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Publish publishes msg and waits for the broker confirm
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	attempt := 0
	err := reliability.Retry(ctx, p.retryPolicy, func() error {
		attempt++
		err := p.publishWithConfirm(ctx, exchange, routingKey, msg)
		if err != nil && attempt > 1 {
			p.logger.Debug("publish retry failed", "exchange", exchange, "routingKey", routingKey, "attempt", attempt, "error", err)
		}
		if err != nil && !IsRetryable(err) {
			return fmt.Errorf("%w: %w", reliability.ErrNonRetryable, err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	return &PublishError{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

func (p *Publisher) publishWithConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	ch, err := p.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer p.pool.Put(ch)

	if !ch.confirming {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to enable confirms: %w", err)
		}
		ch.confirming = true
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		confirmCtx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	acked, err := confirm.WaitContext(confirmCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrPublishTimeout
		}
		return err
	}
	if !acked {
		return ErrPublishNotConfirmed
	}
	return nil
}
