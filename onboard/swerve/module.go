package swerve

import (
	"math"
	"time"

	"github.com/CodedInternet/goswerve/calcs"
	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/edaniels/golog"
	"github.com/felixge/pidctrl"
)

// below this fraction of max speed the azimuth is left where it is
const jitterFraction = 0.01

// Feedforward terms are in output fraction per m/s (and per m/s²).
type Feedforward struct {
	KS float64 `yaml:"ks"`
	KV float64 `yaml:"kv"`
	KA float64 `yaml:"ka"`
}

type ModuleConfig struct {
	Name            string  `yaml:"name"`
	DriveMotorID    int     `yaml:"driveMotor"`
	AngleMotorID    int     `yaml:"angleMotor"`
	EncoderID       int     `yaml:"encoder"`
	AngleOffset     float64 `yaml:"angleOffset"`
	DriveInverted   bool    `yaml:"driveInverted"`
	AngleInverted   bool    `yaml:"angleInverted"`
	EncoderInverted bool    `yaml:"encoderInverted"`
}

// Config is shared by all four modules.
type Config struct {
	WheelCircumference float64
	DriveGearRatio     float64
	CountsPerRev       float64
	MaxSpeed           float64

	DriveGains     calcs.Gains
	AngleGains     calcs.Gains
	Feedforward    Feedforward
	OpenLoopRamp   float64
	ClosedLoopRamp float64
	DriveCurrent   CurrentLimitConfig
	AngleCurrent   CurrentLimitConfig
}

// Status is a copy of the module's state for telemetry.
type Status struct {
	Name           string      `json:"name"`
	Desired        ModuleState `json:"desired"`
	Measured       ModuleState `json:"measured"`
	DriveOutput    float64     `json:"driveOutput"`
	AngleOutput    float64     `json:"angleOutput"`
	DriveOverlimit bool        `json:"driveOverlimit"`
	AngleOverlimit bool        `json:"angleOverlimit"`
	Stale          bool        `json:"stale"`
	WriteFailed    bool        `json:"writeFailed"`
}

// Module owns one drive motor, one azimuth motor and one absolute encoder.
type Module struct {
	cfg    ModuleConfig
	common Config
	bus    hardware.ActuatorBus
	logger golog.Logger

	drivePID   *pidctrl.PIDController
	anglePID   *pidctrl.PIDController
	openRamp   RampLimiter
	closedRamp RampLimiter
	driveLimit *CurrentLimiter
	angleLimit *CurrentLimiter

	desired   ModuleState
	mode      hardware.ControlMode
	synced    bool
	lastAngle float64
	lastSpeed float64

	driveOut    float64
	angleOut    float64
	measured    ModuleState
	stale       bool
	writeFailed bool
}

func NewModule(cfg ModuleConfig, common Config, bus hardware.ActuatorBus, logger golog.Logger) (*Module, error) {
	if !calcs.Finite(cfg.AngleOffset) || cfg.AngleOffset < 0 || cfg.AngleOffset >= 360 {
		return nil, deverrors.ConfigError{Field: cfg.Name + ".angleOffset", Value: cfg.AngleOffset, Reason: "must be in [0, 360)"}
	}
	for field, v := range map[string]float64{
		"wheelCircumference": common.WheelCircumference,
		"driveGearRatio":     common.DriveGearRatio,
		"countsPerRev":       common.CountsPerRev,
		"maxSpeed":           common.MaxSpeed,
	} {
		if !calcs.Finite(v) || v <= 0 {
			return nil, deverrors.ConfigError{Field: field, Value: v, Reason: "must be positive"}
		}
	}

	return &Module{
		cfg:        cfg,
		common:     common,
		bus:        bus,
		logger:     logger,
		drivePID:   common.DriveGains.Controller(),
		anglePID:   common.AngleGains.Controller().Set(0),
		openRamp:   RampLimiter{Ramp: common.OpenLoopRamp},
		closedRamp: RampLimiter{Ramp: common.ClosedLoopRamp},
		driveLimit: NewCurrentLimiter(common.DriveCurrent),
		angleLimit: NewCurrentLimiter(common.AngleCurrent),
		mode:       hardware.OpenLoop,
	}, nil
}

func (m *Module) Name() string {
	return m.cfg.Name
}

// SetDesired replaces the target for the next tick.
func (m *Module) SetDesired(state ModuleState, mode hardware.ControlMode) {
	m.desired = state
	m.mode = mode
}

// Periodic runs one tick of both loops and writes the outputs.
func (m *Module) Periodic(dt time.Duration) {
	abs := m.bus.ReadAbsoluteAngle(m.cfg.EncoderID)
	vel := m.bus.ReadVelocity(m.cfg.DriveMotorID)
	driveAmps := m.bus.ReadCurrent(m.cfg.DriveMotorID)
	angleAmps := m.bus.ReadCurrent(m.cfg.AngleMotorID)

	if abs.Stale || vel.Stale || driveAmps.Stale || angleAmps.Stale {
		if !m.stale {
			m.logger.Warnw("stale module reading, holding outputs", "module", m.cfg.Name,
				"encoder", abs.Stale, "velocity", vel.Stale, "driveCurrent", driveAmps.Stale, "angleCurrent", angleAmps.Stale)
		}
		m.stale = true
		m.write()
		return
	}
	m.stale = false

	current := m.absoluteAngle(abs.Value)
	measured := m.ticksToSpeed(vel.Value)
	if m.cfg.DriveInverted {
		measured = -measured
	}
	m.measured = ModuleState{Speed: measured, Angle: current}

	if !m.synced {
		m.lastAngle = current
		m.synced = true
	}

	target := Optimize(m.desired, current)
	angle := target.Angle
	if math.Abs(target.Speed) <= m.common.MaxSpeed*jitterFraction {
		angle = m.lastAngle
	}
	m.lastAngle = angle

	drive := m.driveOutput(target.Speed, measured, dt)
	m.driveOut = m.driveLimit.Limit(drive, driveAmps.Value, dt)

	az := m.anglePID.UpdateDuration(-calcs.ShortestDelta(current, angle), dt)
	m.angleOut = m.angleLimit.Limit(az, angleAmps.Value, dt)

	m.write()
}

func (m *Module) driveOutput(speed, measured float64, dt time.Duration) float64 {
	var out float64
	switch m.mode {
	case hardware.ClosedLoop:
		var accel float64
		if dt > 0 {
			accel = (speed - m.lastSpeed) / dt.Seconds()
		}
		ff := m.common.Feedforward
		out = ff.KS*calcs.Sign(speed) + ff.KV*speed + ff.KA*accel
		m.drivePID.Set(speed)
		out += m.drivePID.UpdateDuration(measured, dt)
		out = m.closedRamp.Limit(m.driveOut, calcs.Clamp(out, -1, 1), dt)
	default:
		out = m.openRamp.Limit(m.driveOut, calcs.Clamp(speed/m.common.MaxSpeed, -1, 1), dt)
	}
	m.lastSpeed = speed
	return out
}

func (m *Module) write() {
	drive, angle := m.driveOut, m.angleOut
	if m.cfg.DriveInverted {
		drive = -drive
	}
	if m.cfg.AngleInverted {
		angle = -angle
	}

	failed := false
	if err := m.bus.SetOutput(m.cfg.DriveMotorID, drive, m.mode); err != nil {
		failed = true
		if !m.writeFailed {
			m.logger.Warnw("drive output failed", "module", m.cfg.Name, "motor", m.cfg.DriveMotorID, "error", err)
		}
	}
	if err := m.bus.SetOutput(m.cfg.AngleMotorID, angle, hardware.ClosedLoop); err != nil {
		failed = true
		if !m.writeFailed {
			m.logger.Warnw("angle output failed", "module", m.cfg.Name, "motor", m.cfg.AngleMotorID, "error", err)
		}
	}
	m.writeFailed = failed
}

func (m *Module) absoluteAngle(reading float64) float64 {
	if m.cfg.EncoderInverted {
		reading = -reading
	}
	return calcs.WrapDegrees(reading - m.cfg.AngleOffset)
}

// ticksToSpeed converts drive encoder ticks/s to wheel surface m/s.
func (m *Module) ticksToSpeed(ticksPerSecond float64) float64 {
	return ticksPerSecond / m.common.CountsPerRev / m.common.DriveGearRatio * m.common.WheelCircumference
}

func (m *Module) Status() Status {
	return Status{
		Name:           m.cfg.Name,
		Desired:        m.desired,
		Measured:       m.measured,
		DriveOutput:    m.driveOut,
		AngleOutput:    m.angleOut,
		DriveOverlimit: m.driveLimit.Overlimit(),
		AngleOverlimit: m.angleLimit.Overlimit(),
		Stale:          m.stale,
		WriteFailed:    m.writeFailed,
	}
}
