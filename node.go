// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/glimte/netbridge/bridge"
	"github.com/glimte/netbridge/config"
	"github.com/glimte/netbridge/contracts"
	"github.com/glimte/netbridge/health"
	"github.com/glimte/netbridge/internal/reliability"
	"github.com/glimte/netbridge/internal/zmq"
	"github.com/glimte/netbridge/messaging"
	"github.com/glimte/netbridge/transports/websocket"
)

const (
	healthTimeout   = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// ErrNodeClosed is returned by Run after Close
var ErrNodeClosed = errors.New("netbridge: node closed")

// Node owns one bridge instance: the remote endpoint connection, the
// controller driving it, the pub/sub collaborators on the local side and
// the optional HTTP surface for health and the live view.
type Node struct {
	cfg        *config.Config
	logger     *slog.Logger
	adapter    *zmq.Adapter
	controller *bridge.Controller
	registry   *health.Registry
	hub        *websocket.Hub
	mux        *http.ServeMux
	sources    []messaging.Source
	sinks      []messaging.Sink

	subCtx    context.Context
	subCancel context.CancelFunc

	mu        sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NodeOption configures a Node
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	logger  *slog.Logger
	sources []messaging.Source
	sinks   []messaging.Sink
	zmqOpts []zmq.Option
}

// WithLogger sets the logger shared by every component of the node
func WithLogger(logger *slog.Logger) NodeOption {
	return func(c *nodeConfig) {
		c.logger = logger
	}
}

// WithSource adds a source of local vehicle states. The node subscribes
// the controller to it and closes it on shutdown.
func WithSource(source messaging.Source) NodeOption {
	return func(c *nodeConfig) {
		c.sources = append(c.sources, source)
	}
}

// WithSink adds a destination for republished remote states
func WithSink(sink messaging.Sink) NodeOption {
	return func(c *nodeConfig) {
		c.sinks = append(c.sinks, sink)
	}
}

// WithAdapterOptions passes extra options to the endpoint adapter
func WithAdapterOptions(opts ...zmq.Option) NodeOption {
	return func(c *nodeConfig) {
		c.zmqOpts = append(c.zmqOpts, opts...)
	}
}

// NewNode validates cfg, connects to the remote endpoint and wires the
// controller to the given sources and sinks. A failed connect is not fatal:
// it is logged and the node starts disconnected, reconnecting on the next
// send.
func NewNode(ctx context.Context, cfg *config.Config, options ...NodeOption) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nc := &nodeConfig{logger: slog.Default()}
	for _, opt := range options {
		opt(nc)
	}

	n := &Node{
		cfg:      cfg,
		logger:   nc.logger,
		registry: health.NewRegistry(),
		mux:      http.NewServeMux(),
		sources:  nc.sources,
		sinks:    nc.sinks,
	}

	breaker := reliability.NewCircuitBreaker(
		reliability.WithName("zmq-reconnect"),
		reliability.WithFailureThreshold(cfg.ReconnectFailures),
		reliability.WithTimeout(cfg.ReconnectCooldown),
	)
	zmqOpts := append([]zmq.Option{
		zmq.WithLogger(n.logger),
		zmq.WithDialTimeout(cfg.DialTimeout),
		zmq.WithSendTimeout(cfg.SendTimeout),
		zmq.WithReplyTimeout(cfg.ReplyTimeout),
		zmq.WithCircuitBreaker(breaker),
	}, nc.zmqOpts...)
	n.adapter = zmq.NewAdapter(cfg.Endpoint, zmqOpts...)

	if err := n.adapter.Connect(ctx); err != nil {
		n.logger.Error("failed to connect to remote endpoint, continuing disconnected",
			"kind", contracts.KindConnect,
			"endpoint", cfg.Endpoint,
			"error", err)
	}

	sinks := append([]messaging.Sink{}, n.sinks...)
	if cfg.HTTPAddr != "" {
		n.hub = websocket.NewHub(websocket.WithLogger(n.logger))
		sinks = append(sinks, n.hub)
	}

	var sink messaging.Sink = messaging.Discard
	switch len(sinks) {
	case 0:
	case 1:
		sink = sinks[0]
	default:
		sink = messaging.MultiSink(sinks)
	}

	n.controller = bridge.NewController(n.adapter, sink,
		bridge.WithLogger(n.logger),
		bridge.WithTickPeriod(cfg.TickPeriod),
		bridge.WithReceiveTimeout(cfg.EffectiveReceiveTimeout()),
	)

	n.registerChecks()
	health.Mount(n.mux, n.registry, healthTimeout)
	if n.hub != nil {
		n.mux.Handle("/ws", n.hub)
	}

	n.subCtx, n.subCancel = context.WithCancel(context.Background())
	for _, src := range n.sources {
		if err := src.Subscribe(n.subCtx, n.controller.OnVehicleStateEvent); err != nil {
			n.Close()
			return nil, fmt.Errorf("failed to subscribe to source: %w", err)
		}
	}

	return n, nil
}

func (n *Node) registerChecks() {
	n.registry.SetMetadata("endpoint", n.cfg.Endpoint)
	n.registry.SetMetadata("pubsub", n.cfg.PubSub)

	n.registry.Register(health.NewEndpointChecker(n.adapter))
	n.registry.Register(health.NewBreakerChecker(n.adapter.Breaker()))
	n.registry.Register(health.NewControllerChecker(n.controller))

	seen := make(map[string]bool)
	register := func(v any) {
		conn, ok := v.(health.Connection)
		if !ok || seen[conn.Name()] {
			return
		}
		seen[conn.Name()] = true
		n.registry.Register(health.NewConnectionChecker(conn))
	}
	for _, src := range n.sources {
		register(src)
	}
	for _, sink := range n.sinks {
		register(sink)
	}
}

// Run drives the tick loop, and the HTTP server when an address is
// configured, until ctx is done or the server fails
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNodeClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	n.runCancel = cancel
	n.wg.Add(1)
	n.mu.Unlock()
	defer n.wg.Done()
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := n.controller.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- err
			cancel()
		}
	}()

	if n.cfg.HTTPAddr != "" {
		server := &http.Server{
			Addr:              n.cfg.HTTPAddr,
			Handler:           n.mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			n.logger.Info("http server listening", "addr", n.cfg.HTTPAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
				cancel()
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := server.Shutdown(shutdownCtx); err != nil {
				n.logger.Warn("http server shutdown incomplete", "error", err)
			}
		}()
	}

	wg.Wait()
	close(errCh)
	return errors.Join(collect(errCh)...)
}

func collect(ch <-chan error) []error {
	var errs []error
	for err := range ch {
		errs = append(errs, err)
	}
	return errs
}

// Close stops the tick loop, closes the sources, the live view and finally
// the endpoint connection. It is safe to call more than once.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		if n.runCancel != nil {
			n.runCancel()
		}
		n.mu.Unlock()
		n.wg.Wait()

		if n.subCancel != nil {
			n.subCancel()
		}

		var errs []error
		for _, src := range n.sources {
			if err := src.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if n.hub != nil {
			n.hub.Close()
		}
		if err := n.adapter.Close(); err != nil {
			errs = append(errs, err)
		}

		n.closeErr = errors.Join(errs...)
		n.logger.Info("node closed", "endpoint", n.cfg.Endpoint)
	})
	return n.closeErr
}

// Connected reports whether the endpoint socket is currently up
func (n *Node) Connected() bool {
	return n.adapter.IsConnected()
}

// Controller returns the bridge controller
func (n *Node) Controller() *bridge.Controller {
	return n.controller
}

// Adapter returns the endpoint adapter
func (n *Node) Adapter() *zmq.Adapter {
	return n.adapter
}

// Health returns the health registry
func (n *Node) Health() *health.Registry {
	return n.registry
}

// Handler returns the HTTP handler serving health checks and, when the
// live view is enabled, /ws
func (n *Node) Handler() http.Handler {
	return n.mux
}
