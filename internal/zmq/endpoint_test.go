package zmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		valid    bool
	}{
		{"tcp hostname", "tcp://localhost:5555", true},
		{"tcp ipv4", "tcp://127.0.0.1:5555", true},
		{"tcp ipv6", "tcp://[::1]:5555", true},
		{"ipc", "ipc:///tmp/netbridge.sock", true},
		{"inproc", "inproc://bridge", true},
		{"empty", "", false},
		{"no scheme", "localhost:5555", false},
		{"no address", "tcp://", false},
		{"no port", "tcp://localhost", false},
		{"port zero", "tcp://localhost:0", false},
		{"port out of range", "tcp://localhost:65536", false},
		{"wildcard host", "tcp://*:5555", false},
		{"unsupported scheme", "udp://localhost:5555", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpoint(tt.endpoint)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEndpoint)
			}
		})
	}
}
