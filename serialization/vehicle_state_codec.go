package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glimte/netbridge/contracts"
)

var (
	// ErrEncodeFailure is returned when a state cannot be represented in JSON
	ErrEncodeFailure = errors.New("serialization: failed to encode vehicle state")
	// ErrDecodeFailure is wrapped by every DecodeError
	ErrDecodeFailure = errors.New("serialization: failed to decode vehicle state")
)

// ContentTypeJSON is the MIME type of the wire payload
const ContentTypeJSON = "application/json"

// Codec converts vehicle states to and from a wire payload.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(state contracts.VehicleState) ([]byte, error)
	Decode(data []byte) (contracts.VehicleState, error)
	ContentType() string
}

// DecodeError describes why a payload was rejected
type DecodeError struct {
	Field  string // offending key, empty when the payload itself is malformed
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode error: field %q %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error: %s", e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecodeFailure, e.Err}
	}
	return []error{ErrDecodeFailure}
}

// Kind implements contracts.KindedError
func (e *DecodeError) Kind() contracts.ErrorKind {
	return contracts.KindDecode
}

// JSONCodec encodes vehicle states as a flat JSON object with the five
// required keys. Unknown keys are ignored when decoding.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

// Encode produces the JSON object for state
func (JSONCodec) Encode(state contracts.VehicleState) ([]byte, error) {
	if !state.IsFinite() {
		return nil, fmt.Errorf("%w: non-finite value in %s", ErrEncodeFailure, state)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode parses data and extracts the five required fields
func (JSONCodec) Decode(data []byte) (contracts.VehicleState, error) {
	var state contracts.VehicleState

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return state, &DecodeError{Reason: "empty payload"}
	}
	if trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return state, &DecodeError{Reason: "invalid JSON"}
		}
		return state, &DecodeError{Reason: "payload is not a JSON object"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return state, &DecodeError{Reason: "invalid JSON", Err: err}
	}

	targets := [...]*float64{
		&state.PositionX,
		&state.PositionY,
		&state.Yaw,
		&state.Velocity,
		&state.Acceleration,
	}
	for i, key := range contracts.VehicleStateFields {
		raw, ok := fields[key]
		if !ok {
			return contracts.VehicleState{}, &DecodeError{Field: key, Reason: "is missing"}
		}
		if err := decodeNumber(raw, targets[i]); err != nil {
			return contracts.VehicleState{}, &DecodeError{Field: key, Reason: "is not a number", Err: err}
		}
	}

	return state, nil
}

// ContentType returns the JSON MIME type
func (JSONCodec) ContentType() string {
	return ContentTypeJSON
}

// decodeNumber accepts only JSON numbers; null would otherwise be a silent no-op
func decodeNumber(raw json.RawMessage, dst *float64) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.New("null value")
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return fmt.Errorf("unexpected token %q", c)
	}
	return json.Unmarshal(raw, dst)
}

// Encode encodes state with the default JSON codec
func Encode(state contracts.VehicleState) ([]byte, error) {
	return JSONCodec{}.Encode(state)
}

// Decode decodes data with the default JSON codec
func Decode(data []byte) (contracts.VehicleState, error) {
	return JSONCodec{}.Decode(data)
}
