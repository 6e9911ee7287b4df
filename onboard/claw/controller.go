// Package claw moves the two-joint claw between named poses.
package claw

import (
	"time"

	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/edaniels/golog"
)

type State int

const (
	Idle State = iota
	Syncing
	Moving
	AtTarget
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Syncing:
		return "SYNCING"
	case Moving:
		return "MOVING"
	case AtTarget:
		return "AT_TARGET"
	}
	return "UNKNOWN"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Config struct {
	Wrist          JointConfig `yaml:"wrist"`
	Arm            JointConfig `yaml:"arm"`
	ArmFeedforward float64     `yaml:"armFeedforward"`
	// WristTolerance in ticks gates completion; the arm is not checked.
	WristTolerance float64   `yaml:"wristTolerance"`
	Poses          PoseTable `yaml:"poses"`
}

func DefaultConfig() Config {
	return Config{
		Wrist: JointConfig{
			MotorID:        28,
			EncoderID:      30,
			TicksPerDegree: 1,
			GearRatio:      1,
		},
		Arm: JointConfig{
			MotorID:          26,
			FollowerID:       25,
			FollowerInverted: true,
			TicksPerDegree:   1,
			GearRatio:        144,
		},
		ArmFeedforward: 0.09,
		WristTolerance: 8,
		Poses:          DefaultPoseTable(),
	}
}

// Status is a copy of the controller's state for telemetry.
type Status struct {
	State  State      `json:"state"`
	Pose   *Pose      `json:"pose"`
	Target Setpoint   `json:"target"`
	Wrist  JointState `json:"wrist"`
	Arm    JointState `json:"arm"`
	Stale  bool       `json:"stale"`
}

// PoseController runs Idle -> Syncing -> Moving -> AtTarget for each request.
type PoseController struct {
	table     PoseTable
	tolerance float64
	wrist     *Joint
	arm       *Joint
	logger    golog.Logger

	state  State
	pose   Pose
	posed  bool
	target Setpoint
}

func NewPoseController(cfg Config, bus hardware.ActuatorBus, logger golog.Logger) (*PoseController, error) {
	if err := cfg.Poses.Validate(); err != nil {
		return nil, err
	}
	if cfg.WristTolerance < 0 {
		return nil, deverrors.ConfigError{Field: "claw.wristTolerance", Value: cfg.WristTolerance, Reason: "must not be negative"}
	}
	if cfg.Wrist.EncoderID != 0 && cfg.Wrist.TicksPerDegree <= 0 {
		return nil, deverrors.ConfigError{Field: "claw.wrist.ticksPerDegree", Value: cfg.Wrist.TicksPerDegree, Reason: "must be positive"}
	}

	return &PoseController{
		table:     cfg.Poses,
		tolerance: cfg.WristTolerance,
		wrist:     newJoint(cfg.Wrist, 0, bus),
		arm:       newJoint(cfg.Arm, cfg.ArmFeedforward, bus),
		logger:    logger,
	}, nil
}

// Request commits a new target and restarts the sync. TRANSITION is refused
// and leaves everything as it was.
func (c *PoseController) Request(p Pose) error {
	if !p.Requestable() {
		reason := "unknown pose"
		if p == Transition {
			reason = "TRANSITION is only reachable as a waypoint"
		}
		return deverrors.InvalidPoseRequestError{Pose: p.String(), Reason: reason}
	}

	sp, _ := c.table.Lookup(p)
	c.logger.Debugw("pose requested", "pose", p, "from", c.state, "wrist", sp.Wrist, "arm", sp.Arm)

	c.pose, c.posed = p, true
	c.target = sp
	c.state = Syncing
	return nil
}

// Periodic advances the state machine by one tick.
func (c *PoseController) Periodic(dt time.Duration) {
	switch c.state {
	case Idle:
		c.wrist.Hold()
		c.arm.Hold()

	case Syncing:
		if !c.wrist.Sync() {
			c.logger.Warnw("wrist sync skipped, encoder stale", "pose", c.pose)
		}
		c.wrist.Hold()
		c.arm.Hold()

		c.wrist.SetTarget(c.target.Wrist)
		c.arm.SetTarget(c.target.Arm)
		c.state = Moving

	case Moving, AtTarget:
		c.wrist.Update(dt)
		c.arm.Update(dt)

		if c.state == Moving && c.wrist.AtTarget(c.tolerance) {
			c.logger.Debugw("pose reached", "pose", c.pose, "wrist", c.wrist.position, "arm", c.arm.position)
			c.state = AtTarget
		}
	}
}

func (c *PoseController) IsAtTarget() bool {
	return c.state == AtTarget
}

func (c *PoseController) State() State {
	return c.state
}

// Target is the committed setpoint of the last accepted request.
func (c *PoseController) Target() (Pose, Setpoint, bool) {
	return c.pose, c.target, c.posed
}

func (c *PoseController) Status() Status {
	st := Status{
		State:  c.state,
		Target: c.target,
		Wrist:  c.wrist.State(),
		Arm:    c.arm.State(),
	}
	if c.posed {
		p := c.pose
		st.Pose = &p
	}
	st.Stale = st.Wrist.Stale || st.Arm.Stale
	return st
}
