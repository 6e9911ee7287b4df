package onboard

import (
	"math"

	"github.com/CodedInternet/goswerve/calcs"
	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	"github.com/CodedInternet/goswerve/onboard/swerve"
	"github.com/go-gl/mathgl/mgl64"
)

// module order used by every [4] array in this package
const (
	FrontLeft = iota
	FrontRight
	RearLeft
	RearRight
	numModules
)

var moduleNames = [numModules]string{"frontLeft", "frontRight", "rearLeft", "rearRight"}

// ChassisGeometry is in meters. x is forward, y is left.
type ChassisGeometry struct {
	TrackWidth         float64 `yaml:"trackWidth"`
	WheelBase          float64 `yaml:"wheelBase"`
	WheelCircumference float64 `yaml:"wheelCircumference"`
	DriveGearRatio     float64 `yaml:"driveGearRatio"`
	AngleGearRatio     float64 `yaml:"angleGearRatio"`
}

// Offsets returns each module's position relative to the chassis center.
func (g ChassisGeometry) Offsets() (offsets [numModules]mgl64.Vec2) {
	x, y := g.WheelBase/2, g.TrackWidth/2
	offsets[FrontLeft] = mgl64.Vec2{x, y}
	offsets[FrontRight] = mgl64.Vec2{x, -y}
	offsets[RearLeft] = mgl64.Vec2{-x, y}
	offsets[RearRight] = mgl64.Vec2{-x, -y}
	return
}

// ModuleTargets converts a body velocity (m/s, m/s, rad/s) to a speed and
// heading per module. Headings are degrees in [0, 360).
func (g ChassisGeometry) ModuleTargets(vx, vy, omega float64) (states [numModules]swerve.ModuleState, err error) {
	if !calcs.Finite(vx, vy, omega) {
		return states, deverrors.InvalidCommandError{Vx: vx, Vy: vy, Omega: omega}
	}

	body := mgl64.Vec2{vx, vy}
	for i, r := range g.Offsets() {
		// ω × r for a rotation about z
		v := body.Add(mgl64.Vec2{-omega * r.Y(), omega * r.X()})
		speed := v.Len()

		var angle float64
		if speed > 0 {
			angle = calcs.WrapDegrees(mgl64.RadToDeg(math.Atan2(v.Y(), v.X())))
		}
		states[i] = swerve.ModuleState{Speed: speed, Angle: angle}
	}
	return states, nil
}

// Desaturate scales every speed by the same factor so none exceeds maxSpeed.
// Headings are untouched so the chassis keeps its direction of travel.
func Desaturate(states [numModules]swerve.ModuleState, maxSpeed float64) [numModules]swerve.ModuleState {
	var fastest float64
	for _, s := range states {
		fastest = math.Max(fastest, math.Abs(s.Speed))
	}
	if fastest <= maxSpeed || fastest == 0 {
		return states
	}

	scale := maxSpeed / fastest
	for i := range states {
		states[i].Speed *= scale
	}
	return states
}
