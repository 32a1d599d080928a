package serialization

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/glimte/netbridge/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_Encode(t *testing.T) {
	t.Run("encodes reference state with exactly five keys", func(t *testing.T) {
		state := contracts.VehicleState{PositionX: 1.0, PositionY: 2.0, Yaw: 0.5, Velocity: 3.0, Acceleration: 0.1}

		data, err := Encode(state)
		require.NoError(t, err)
		assert.JSONEq(t,
			`{"position_x":1.0,"position_y":2.0,"yaw":0.5,"velocity":3.0,"acceleration":0.1}`,
			string(data))

		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &fields))
		assert.Len(t, fields, 5)
		for _, key := range contracts.VehicleStateFields {
			assert.IsType(t, float64(0), fields[key], key)
		}
	})

	t.Run("rejects non-finite values", func(t *testing.T) {
		_, err := Encode(contracts.VehicleState{Yaw: math.NaN()})
		assert.ErrorIs(t, err, ErrEncodeFailure)

		_, err = Encode(contracts.VehicleState{Velocity: math.Inf(-1)})
		assert.ErrorIs(t, err, ErrEncodeFailure)
	})

	t.Run("content type is JSON", func(t *testing.T) {
		assert.Equal(t, "application/json", JSONCodec{}.ContentType())
	})
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	states := []contracts.VehicleState{
		{},
		{PositionX: 1.0, PositionY: 2.0, Yaw: 0.5, Velocity: 3.0, Acceleration: 0.1},
		{PositionX: -1234.5678, PositionY: 9876.54321, Yaw: -math.Pi, Velocity: 0, Acceleration: -9.81},
		{PositionX: math.MaxFloat64, PositionY: -math.MaxFloat64, Yaw: math.SmallestNonzeroFloat64},
		{PositionX: 1e-300, PositionY: 1e300, Yaw: 2 * math.Pi, Velocity: 33.333333333333336, Acceleration: 0.1 + 0.2},
	}

	codec := JSONCodec{}
	for _, state := range states {
		data, err := codec.Encode(state)
		require.NoError(t, err)

		decoded, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, state, decoded)
	}
}

func TestJSONCodec_Decode(t *testing.T) {
	t.Run("ignores unknown keys", func(t *testing.T) {
		state, err := Decode([]byte(`{"position_x":1,"position_y":2,"yaw":0.5,"velocity":3,"acceleration":0.1,"heading_source":"gnss","extra":{"a":[1,2]}}`))
		require.NoError(t, err)
		assert.Equal(t, contracts.VehicleState{PositionX: 1, PositionY: 2, Yaw: 0.5, Velocity: 3, Acceleration: 0.1}, state)
	})

	t.Run("accepts integers and exponents", func(t *testing.T) {
		state, err := Decode([]byte(` {"position_x":-3,"position_y":2e2,"yaw":0,"velocity":1E-1,"acceleration":-0.0} `))
		require.NoError(t, err)
		assert.Equal(t, -3.0, state.PositionX)
		assert.Equal(t, 200.0, state.PositionY)
		assert.Equal(t, 0.1, state.Velocity)
	})

	missing := map[string]string{
		"position_x":   `{"position_y":2,"yaw":0.5,"velocity":3,"acceleration":0.1}`,
		"position_y":   `{"position_x":1,"yaw":0.5,"velocity":3,"acceleration":0.1}`,
		"yaw":          `{"position_x":1,"position_y":2,"velocity":3,"acceleration":0.1}`,
		"velocity":     `{"position_x":1,"position_y":2,"yaw":0.5,"acceleration":0.1}`,
		"acceleration": `{"position_x":1,"position_y":2,"yaw":0.5,"velocity":3}`,
	}
	for field, payload := range missing {
		t.Run("rejects missing "+field, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, field, decodeErr.Field)
			assert.ErrorIs(t, err, ErrDecodeFailure)
			assert.Equal(t, contracts.KindDecode, contracts.KindOf(err))
		})
	}

	nonNumeric := []struct {
		name    string
		payload string
	}{
		{"string value", `{"position_x":"1.0","position_y":2,"yaw":0.5,"velocity":3,"acceleration":0.1}`},
		{"null value", `{"position_x":1,"position_y":null,"yaw":0.5,"velocity":3,"acceleration":0.1}`},
		{"boolean value", `{"position_x":1,"position_y":2,"yaw":true,"velocity":3,"acceleration":0.1}`},
		{"array value", `{"position_x":1,"position_y":2,"yaw":0.5,"velocity":[3],"acceleration":0.1}`},
		{"object value", `{"position_x":1,"position_y":2,"yaw":0.5,"velocity":3,"acceleration":{"v":0.1}}`},
		{"out of range", `{"position_x":1e400,"position_y":2,"yaw":0.5,"velocity":3,"acceleration":0.1}`},
	}
	for _, tt := range nonNumeric {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.NotEmpty(t, decodeErr.Field)
			assert.Contains(t, decodeErr.Error(), "is not a number")
		})
	}

	malformed := []struct {
		name    string
		payload string
	}{
		{"empty payload", ``},
		{"whitespace", "  \n"},
		{"truncated object", `{"position_x":1,`},
		{"plain text", `vehicle state`},
		{"json array", `[1,2,3,4,5]`},
		{"json number", `42`},
		{"json string", `"position_x"`},
		{"json null", `null`},
		{"trailing garbage", `{"position_x":1,"position_y":2,"yaw":0.5,"velocity":3,"acceleration":0.1} x`},
	}
	for _, tt := range malformed {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			state, err := Decode([]byte(tt.payload))
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Empty(t, decodeErr.Field)
			assert.True(t, errors.Is(err, ErrDecodeFailure))
			assert.Equal(t, contracts.VehicleState{}, state)
		})
	}
}
