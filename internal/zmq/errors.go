package zmq

import (
	"errors"
	"fmt"
	"time"

	"github.com/glimte/netbridge/contracts"
)

var (
	// Connection errors
	ErrInvalidEndpoint = errors.New("zmq: invalid endpoint")
	ErrConnectTimeout  = errors.New("zmq: connect timeout")
	ErrNotConnected    = errors.New("zmq: not connected")
	ErrAdapterClosed   = errors.New("zmq: adapter is closed")

	// Request/reply discipline errors
	ErrReplyPending = errors.New("zmq: previous request still awaiting reply")
	ErrSendTimeout  = errors.New("zmq: send timeout")
	ErrReplyTimeout = errors.New("zmq: no reply within reply timeout")
)

// ConnectError is returned when the socket cannot be established
type ConnectError struct {
	Op        string    // connect or reconnect
	Endpoint  string    // remote address
	Err       error     // underlying error
	Timestamp time.Time // when the error occurred
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("zmq connect error: %s to %s failed: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Kind implements contracts.KindedError
func (e *ConnectError) Kind() contracts.ErrorKind {
	return contracts.KindConnect
}

// SendError is returned when a request could not be written. The message
// must be treated as not delivered.
type SendError struct {
	Endpoint  string
	Size      int
	Err       error
	Timestamp time.Time
}

func (e *SendError) Error() string {
	return fmt.Sprintf("zmq send error: %d bytes to %s: %v", e.Size, e.Endpoint, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Kind implements contracts.KindedError
func (e *SendError) Kind() contracts.ErrorKind {
	return contracts.KindSend
}

// ReceiveError is returned on a transport fault while waiting for a reply
type ReceiveError struct {
	Endpoint  string
	Err       error
	Timestamp time.Time
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("zmq receive error: from %s: %v", e.Endpoint, e.Err)
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}

// Kind implements contracts.KindedError
func (e *ReceiveError) Kind() contracts.ErrorKind {
	return contracts.KindReceive
}
