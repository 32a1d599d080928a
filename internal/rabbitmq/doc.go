// Package rabbitmq wraps amqp091-go for the AMQP pub/sub side of netbridge.
//
// This package includes:
//   - ConnectionManager: one connection with automatic reconnection
//   - ChannelPool: bounded reuse of channels on that connection
//   - Publisher: confirmed publishing with retries
//   - Consumer: queue consumption with ack/nack handling
//   - TopologyManager: exchange, queue and binding declaration
package rabbitmq
