// Package serialization is the wire codec of the bridge.
//
// A VehicleState travels as a UTF-8 JSON object with exactly five numeric keys:
//
//	{"position_x":1.0,"position_y":2.0,"yaw":0.5,"velocity":3.0,"acceleration":0.1}
//
// Decoding rejects anything that is not a JSON object, any missing key and any
// non-numeric value with a *DecodeError. Extra keys are ignored so that newer
// peers can add fields without breaking older bridges. Only field equality is
// guaranteed across a round trip, not byte equality.
package serialization
