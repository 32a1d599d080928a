package messaging

import (
	"context"
	"errors"

	"github.com/glimte/netbridge/contracts"
)

var (
	// ErrClosed is returned by sources and sinks used after Close
	ErrClosed = errors.New("messaging: closed")
)

// StateHandler is invoked for every vehicle state a Source produces
type StateHandler func(ctx context.Context, state contracts.VehicleState)

// Source delivers local vehicle state events to a handler
type Source interface {
	// Subscribe starts delivering states to handler until ctx is done
	// or the source is closed
	Subscribe(ctx context.Context, handler StateHandler) error

	// Close stops delivery
	Close() error
}

// Sink republishes vehicle states received from the remote endpoint
type Sink interface {
	Publish(ctx context.Context, state contracts.VehicleState) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, state contracts.VehicleState) error

// Publish implements Sink
func (f SinkFunc) Publish(ctx context.Context, state contracts.VehicleState) error {
	return f(ctx, state)
}

// MultiSink publishes each state to every sink in order. All sinks are
// attempted; their errors are joined.
type MultiSink []Sink

// Publish implements Sink
func (m MultiSink) Publish(ctx context.Context, state contracts.VehicleState) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Sink that drops every state
var Discard Sink = SinkFunc(func(context.Context, contracts.VehicleState) error { return nil })
