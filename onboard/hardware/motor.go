package hardware

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ControlMode tags an output with the loop that produced it.
type ControlMode uint8

const (
	// OpenLoop outputs are a plain duty cycle.
	OpenLoop ControlMode = iota + 1
	// ClosedLoop outputs were computed against sensor feedback on the host.
	ClosedLoop
	// Neutral releases the motor; the value is ignored.
	Neutral
)

func (m ControlMode) String() string {
	switch m {
	case OpenLoop:
		return "open_loop"
	case ClosedLoop:
		return "closed_loop"
	case Neutral:
		return "neutral"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Signal identifies one of the values a motor controller or encoder reports.
type Signal uint8

const (
	SignalPosition Signal = iota + 1 // encoder ticks
	SignalVelocity                   // encoder ticks per second
	SignalCurrent                    // amps
	SignalAbsolute                   // degrees, absolute encoders only
)

// Reading is a sensor value along with whether it can be trusted.
// Stale readings carry the last value received, or zero.
type Reading struct {
	Value float64
	Stale bool
}

// ActuatorBus is everything the controllers need from the motor transport.
// Reads never block; a timed out or missing value comes back Stale.
type ActuatorBus interface {
	SetOutput(motorID int, value float64, mode ControlMode) error
	ReadPosition(sensorID int) Reading
	ReadVelocity(sensorID int) Reading
	ReadAbsoluteAngle(encoderID int) Reading
	ReadCurrent(motorID int) Reading
}

// ParseControlMode accepts "open", "closed" and the String forms. Empty is open loop.
func ParseControlMode(s string) (ControlMode, error) {
	switch strings.ToLower(s) {
	case "", "open", "open_loop", "openloop":
		return OpenLoop, nil
	case "closed", "closed_loop", "closedloop":
		return ClosedLoop, nil
	}
	return 0, errors.Errorf("unknown control mode %q", s)
}
