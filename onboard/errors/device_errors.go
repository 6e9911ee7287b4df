package errors

import "fmt"

// InvalidCommandError is returned when a chassis command carries a non-finite component.
type InvalidCommandError struct {
	Vx, Vy, Omega float64
}

func (err InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid chassis command vx=%v vy=%v omega=%v", err.Vx, err.Vy, err.Omega)
}

// InvalidPoseRequestError is returned when a pose cannot be requested directly.
type InvalidPoseRequestError struct {
	Pose   string
	Reason string
}

func (err InvalidPoseRequestError) Error() string {
	if len(err.Pose) == 0 {
		err.Pose = "UNKNOWN"
	}
	if len(err.Reason) == 0 {
		return fmt.Sprintf("invalid pose request %s", err.Pose)
	}

	return fmt.Sprintf("invalid pose request %s: %s", err.Pose, err.Reason)
}

// SensorStaleError describes a bus read that timed out or returned old data.
type SensorStaleError struct {
	Source   string
	SensorID int
}

func (err SensorStaleError) Error() string {
	if len(err.Source) == 0 {
		err.Source = "UNKNOWN"
	}

	return fmt.Sprintf("stale reading from sensor %d on %s", err.SensorID, err.Source)
}

// ConfigError is returned when a configuration value is outside its valid range.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (err ConfigError) Error() string {
	return fmt.Sprintf("bad config %s=%v: %s", err.Field, err.Value, err.Reason)
}
