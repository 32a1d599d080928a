package zmq

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidateEndpoint checks that ep is a dialable ZeroMQ address:
// tcp://host:port, ipc://path or inproc://name.
func ValidateEndpoint(ep string) error {
	scheme, addr, ok := strings.Cut(ep, "://")
	if !ok || addr == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, ep)
	}

	switch scheme {
	case "tcp":
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, ep, err)
		}
		if host == "" || host == "*" {
			return fmt.Errorf("%w: %q: missing host", ErrInvalidEndpoint, ep)
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: %q: bad port %q", ErrInvalidEndpoint, ep, port)
		}
		return nil
	case "ipc", "inproc":
		return nil
	default:
		return fmt.Errorf("%w: %q: unsupported transport %q", ErrInvalidEndpoint, ep, scheme)
	}
}
