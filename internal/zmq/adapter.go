package zmq

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/glimte/netbridge/internal/reliability"
)

// SocketFactory builds an unconnected REQ socket whose lifetime is bound to ctx
type SocketFactory func(ctx context.Context) zmq4.Socket

// Adapter owns a single REQ socket to one remote endpoint and enforces the
// request/reply discipline on it: one Send, then Receive calls until the reply
// arrives. An adapter that lost its socket reconnects once on the next Send;
// reconnects go through a circuit breaker so repeated failures are reported
// instead of retried in a loop.
type Adapter struct {
	endpoint     string
	newSocket    SocketFactory
	dialTimeout  time.Duration
	dialRetries  int
	sendTimeout  time.Duration
	replyTimeout time.Duration
	breaker      *reliability.CircuitBreaker
	logger       *slog.Logger

	mu      sync.Mutex
	sock    zmq4.Socket
	cancel  context.CancelFunc
	pending *pendingRequest
	closed  bool

	state       atomic.Int32
	awaiting    atomic.Bool
	listenersMu sync.RWMutex
	listeners   []StateListener
}

type pendingRequest struct {
	sentAt  time.Time
	replies chan reply
}

type reply struct {
	payload []byte
	err     error
}

// Option configures the Adapter
type Option func(*Adapter)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithDialTimeout bounds how long a connect or reconnect may take
func WithDialTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.dialTimeout = timeout
	}
}

// WithDialRetries sets how many times the socket redials inside one connect
func WithDialRetries(retries int) Option {
	return func(a *Adapter) {
		a.dialRetries = retries
	}
}

// WithSendTimeout sets the ceiling on a single send
func WithSendTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.sendTimeout = timeout
	}
}

// WithReplyTimeout sets how long an unanswered request is kept before the
// socket is abandoned
func WithReplyTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.replyTimeout = timeout
	}
}

// WithCircuitBreaker replaces the breaker that guards reconnects
func WithCircuitBreaker(cb *reliability.CircuitBreaker) Option {
	return func(a *Adapter) {
		a.breaker = cb
	}
}

// WithSocketFactory replaces the REQ socket constructor
func WithSocketFactory(factory SocketFactory) Option {
	return func(a *Adapter) {
		a.newSocket = factory
	}
}

// WithStateListener registers a state listener
func WithStateListener(listener StateListener) Option {
	return func(a *Adapter) {
		a.listeners = append(a.listeners, listener)
	}
}

// NewAdapter creates a disconnected adapter for endpoint
func NewAdapter(endpoint string, options ...Option) *Adapter {
	a := &Adapter{
		endpoint:     endpoint,
		dialTimeout:  2 * time.Second,
		dialRetries:  1,
		sendTimeout:  time.Second,
		replyTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	a.newSocket = a.reqSocket

	for _, opt := range options {
		opt(a)
	}

	if a.breaker == nil {
		a.breaker = reliability.NewCircuitBreaker(
			reliability.WithName("zmq-reconnect"),
			reliability.WithFailureThreshold(3),
			reliability.WithTimeout(5*time.Second),
		)
	}

	return a
}

func (a *Adapter) reqSocket(ctx context.Context) zmq4.Socket {
	return zmq4.NewReq(ctx,
		zmq4.WithDialerTimeout(a.dialTimeout),
		zmq4.WithDialerRetry(250*time.Millisecond),
		zmq4.WithDialerMaxRetries(a.dialRetries),
	)
}

// Connect establishes the socket. It is a no-op when already connected.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return a.connectError("connect", ErrAdapterClosed)
	}
	if a.sock != nil {
		return nil
	}
	return a.dialLocked(ctx, "connect", a.dialTimeout)
}

// Send writes one request. It fails with ErrReplyPending while the previous
// request is unanswered. On any failure the socket is discarded and the
// message must be considered lost.
func (a *Adapter) Send(ctx context.Context, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return a.sendError(len(payload), ErrAdapterClosed)
	}
	if a.pending != nil {
		return a.sendError(len(payload), ErrReplyPending)
	}
	// reconnect and write share the send ceiling
	deadline := time.Now().Add(a.sendTimeout)
	if a.sock == nil {
		if err := a.reconnectLocked(ctx, min(a.dialTimeout, a.sendTimeout)); err != nil {
			return a.sendError(len(payload), err)
		}
	}

	a.setState(StateSending)
	sock := a.sock
	msg := zmq4.NewMsg(bytes.Clone(payload))

	sent := make(chan error, 1)
	go func() {
		sent <- sock.Send(msg)
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var err error
	select {
	case err = <-sent:
	case <-timer.C:
		err = ErrSendTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		a.discardLocked("send failed")
		return a.sendError(len(payload), err)
	}

	p := &pendingRequest{
		sentAt:  time.Now(),
		replies: make(chan reply, 1),
	}
	go func() {
		msg, err := sock.Recv()
		if err != nil {
			p.replies <- reply{err: err}
			return
		}
		p.replies <- reply{payload: msg.Bytes()}
	}()

	a.pending = p
	a.awaiting.Store(true)
	a.setState(StateConnected)
	return nil
}

// Receive waits up to timeout for the reply to the outstanding request. It
// returns nil, nil when nothing is outstanding or the reply is not ready yet.
// A request unanswered for longer than the reply timeout is abandoned with a
// ReceiveError so that the next Send can reconnect.
func (a *Adapter) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, a.receiveError(ErrAdapterClosed)
	}
	p := a.pending
	if p == nil {
		return nil, nil
	}

	a.setState(StateReceiving)

	if timeout <= 0 {
		timeout = time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.replies:
		a.pending = nil
		a.awaiting.Store(false)
		if r.err != nil {
			a.discardLocked("receive failed")
			return nil, a.receiveError(r.err)
		}
		a.setState(StateConnected)
		if len(r.payload) == 0 {
			return nil, nil
		}
		return r.payload, nil

	case <-ctx.Done():
		a.setState(StateConnected)
		return nil, ctx.Err()

	case <-timer.C:
	}

	a.setState(StateConnected)
	if age := time.Since(p.sentAt); age > a.replyTimeout {
		a.discardLocked("reply timeout")
		return nil, a.receiveError(fmt.Errorf("%w: waited %v", ErrReplyTimeout, age.Round(time.Millisecond)))
	}
	return nil, nil
}

// Close releases the socket. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	if a.sock != nil {
		a.cancel()
		err = a.sock.Close()
		a.sock = nil
		a.cancel = nil
	}
	a.pending = nil
	a.awaiting.Store(false)
	a.setState(StateDisconnected)

	a.logger.Info("zmq adapter closed", "endpoint", a.endpoint)
	return err
}

// State returns the current lifecycle state
func (a *Adapter) State() State {
	return State(a.state.Load())
}

// IsConnected reports whether a socket is currently established
func (a *Adapter) IsConnected() bool {
	return a.State() >= StateConnected
}

// AwaitingReply reports whether a request is outstanding
func (a *Adapter) AwaitingReply() bool {
	return a.awaiting.Load()
}

// Endpoint returns the remote address
func (a *Adapter) Endpoint() string {
	return a.endpoint
}

// Breaker returns the circuit breaker guarding reconnects
func (a *Adapter) Breaker() *reliability.CircuitBreaker {
	return a.breaker
}

// AddStateListener adds a state listener
func (a *Adapter) AddStateListener(listener StateListener) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, listener)
}

func (a *Adapter) reconnectLocked(ctx context.Context, timeout time.Duration) error {
	if a.breaker.GetState() == reliability.StateOpen {
		a.logger.Debug("reconnect suppressed, circuit open", "endpoint", a.endpoint)
	} else {
		a.logger.Info("attempting to reconnect", "endpoint", a.endpoint, "timeout", timeout)
	}
	return a.breaker.Execute(ctx, func() error {
		return a.dialLocked(ctx, "reconnect", timeout)
	})
}

func (a *Adapter) dialLocked(ctx context.Context, op string, timeout time.Duration) error {
	if err := ValidateEndpoint(a.endpoint); err != nil {
		a.setState(StateDisconnected)
		return a.connectError(op, err)
	}

	a.setState(StateConnecting)

	sockCtx, cancel := context.WithCancel(context.Background())
	sock := a.newSocket(sockCtx)

	dialed := make(chan error, 1)
	go func() {
		dialed <- sock.Dial(a.endpoint)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-dialed:
	case <-timer.C:
		err = ErrConnectTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		sock.Close()
		a.setState(StateDisconnected)
		return a.connectError(op, err)
	}

	a.sock = sock
	a.cancel = cancel
	a.setState(StateConnected)
	a.logger.Info("connected to remote endpoint", "endpoint", a.endpoint, "op", op)
	return nil
}

// discardLocked drops the socket after a fault; the next Send reconnects
func (a *Adapter) discardLocked(reason string) {
	if a.sock != nil {
		a.cancel()
		if err := a.sock.Close(); err != nil {
			a.logger.Debug("closing discarded socket", "endpoint", a.endpoint, "error", err)
		}
	}
	a.sock = nil
	a.cancel = nil
	a.pending = nil
	a.awaiting.Store(false)
	a.setState(StateDisconnected)
	a.logger.Debug("socket discarded", "endpoint", a.endpoint, "reason", reason)
}

func (a *Adapter) setState(to State) {
	from := State(a.state.Swap(int32(to)))
	if from == to {
		return
	}

	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, listener := range a.listeners {
		go listener.OnStateChange(from, to)
	}
}

func (a *Adapter) connectError(op string, err error) *ConnectError {
	return &ConnectError{
		Op:        op,
		Endpoint:  a.endpoint,
		Err:       err,
		Timestamp: time.Now(),
	}
}

func (a *Adapter) sendError(size int, err error) *SendError {
	return &SendError{
		Endpoint:  a.endpoint,
		Size:      size,
		Err:       err,
		Timestamp: time.Now(),
	}
}

func (a *Adapter) receiveError(err error) *ReceiveError {
	return &ReceiveError{
		Endpoint:  a.endpoint,
		Err:       err,
		Timestamp: time.Now(),
	}
}
