// Package swerve closes the drive and azimuth loops of a single swerve module.
package swerve

import (
	"fmt"
	"math"

	"github.com/CodedInternet/goswerve/calcs"
)

// ModuleState is a wheel speed in m/s and an azimuth in degrees [0, 360).
type ModuleState struct {
	Speed float64 `json:"speed"`
	Angle float64 `json:"angle"`
}

func (s ModuleState) String() string {
	return fmt.Sprintf("%.3fm/s@%.1f°", s.Speed, s.Angle)
}

// Optimize picks whichever of the target and its reverse is closer to the
// current azimuth. A delta of exactly 90 degrees reverses.
func Optimize(desired ModuleState, currentAngle float64) ModuleState {
	delta := calcs.ShortestDelta(currentAngle, desired.Angle)
	if math.Abs(delta) >= 90 {
		return ModuleState{
			Speed: -desired.Speed,
			Angle: calcs.WrapDegrees(desired.Angle - 180),
		}
	}
	return ModuleState{Speed: desired.Speed, Angle: calcs.WrapDegrees(desired.Angle)}
}
