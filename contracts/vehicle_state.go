package contracts

import (
	"fmt"
	"math"
)

// VehicleState is the kinematic snapshot exchanged between the pub/sub side and
// the remote endpoint. It is a value type; copies are cheap and never shared.
type VehicleState struct {
	PositionX    float64 `json:"position_x"`
	PositionY    float64 `json:"position_y"`
	Yaw          float64 `json:"yaw"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
}

// VehicleStateFields lists the wire keys in encoding order.
var VehicleStateFields = []string{
	"position_x",
	"position_y",
	"yaw",
	"velocity",
	"acceleration",
}

// IsFinite reports whether every field holds a finite number.
func (s VehicleState) IsFinite() bool {
	for _, v := range [...]float64{s.PositionX, s.PositionY, s.Yaw, s.Velocity, s.Acceleration} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String formats the state for log output.
func (s VehicleState) String() string {
	return fmt.Sprintf("x=%f y=%f yaw=%f v=%f a=%f",
		s.PositionX, s.PositionY, s.Yaw, s.Velocity, s.Acceleration)
}
