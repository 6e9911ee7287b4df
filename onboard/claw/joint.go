package claw

import (
	"math"
	"time"

	"github.com/CodedInternet/goswerve/calcs"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/felixge/pidctrl"
)

type JointConfig struct {
	MotorID          int  `yaml:"motor"`
	Inverted         bool `yaml:"inverted"`
	FollowerID       int  `yaml:"follower"` // 0 for none
	FollowerInverted bool `yaml:"followerInverted"`
	EncoderID        int  `yaml:"encoder"` // absolute encoder, 0 for none
	// TicksPerDegree converts the absolute encoder reading into joint ticks.
	TicksPerDegree float64     `yaml:"ticksPerDegree"`
	GearRatio      float64     `yaml:"gearRatio"`
	Gains          calcs.Gains `yaml:"gains"`
}

// JointState is a snapshot of one joint.
type JointState struct {
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Target   float64 `json:"target"`
	Output   float64 `json:"output"`
	Stale    bool    `json:"stale"`
}

// Joint is a bounded position loop on a relative motor encoder, optionally
// rebased from an absolute encoder.
type Joint struct {
	cfg         JointConfig
	bus         hardware.ActuatorBus
	pid         *pidctrl.PIDController
	feedforward float64

	offset   float64
	position float64
	velocity float64
	target   float64
	output   float64
	stale    bool
}

func newJoint(cfg JointConfig, feedforward float64, bus hardware.ActuatorBus) *Joint {
	return &Joint{
		cfg:         cfg,
		bus:         bus,
		pid:         cfg.Gains.Controller(),
		feedforward: feedforward,
	}
}

// Sync rebases the relative reading onto the absolute encoder. Joints with no
// encoder are left alone. It reports false when either reading was stale.
func (j *Joint) Sync() bool {
	if j.cfg.EncoderID == 0 {
		return true
	}

	abs := j.bus.ReadAbsoluteAngle(j.cfg.EncoderID)
	rel := j.bus.ReadPosition(j.cfg.MotorID)
	if abs.Stale || rel.Stale {
		j.stale = true
		return false
	}

	j.offset = abs.Value*j.cfg.TicksPerDegree - j.sign(rel.Value)
	j.position = abs.Value * j.cfg.TicksPerDegree
	return true
}

func (j *Joint) SetTarget(target float64) {
	j.target = target
	j.pid.Set(target)
}

// Update runs one tick of the position loop. A stale reading holds the last output.
func (j *Joint) Update(dt time.Duration) {
	rel := j.bus.ReadPosition(j.cfg.MotorID)
	if rel.Stale {
		j.stale = true
		j.Hold()
		return
	}
	j.stale = false
	j.position = j.sign(rel.Value) + j.offset

	if vel := j.bus.ReadVelocity(j.cfg.MotorID); !vel.Stale {
		j.velocity = j.sign(vel.Value)
	}

	j.output = calcs.Clamp(j.pid.UpdateDuration(j.position, dt)+j.feedforward, -1, 1)
	j.Hold()
}

// Hold re-emits the last output to the motor and its follower.
func (j *Joint) Hold() error {
	out := j.sign(j.output)
	err := j.bus.SetOutput(j.cfg.MotorID, out, hardware.ClosedLoop)
	if j.cfg.FollowerID != 0 {
		follow := out
		if j.cfg.FollowerInverted {
			follow = -follow
		}
		if ferr := j.bus.SetOutput(j.cfg.FollowerID, follow, hardware.ClosedLoop); err == nil {
			err = ferr
		}
	}
	return err
}

// AtTarget reports whether the joint is within tolerance ticks of its target.
func (j *Joint) AtTarget(tolerance float64) bool {
	return !j.stale && math.Abs(j.position-j.target) <= tolerance
}

func (j *Joint) State() JointState {
	return JointState{
		Position: j.position,
		Velocity: j.velocity,
		Target:   j.target,
		Output:   j.output,
		Stale:    j.stale,
	}
}

func (j *Joint) sign(v float64) float64 {
	if j.cfg.Inverted {
		return -v
	}
	return v
}
