package onboard

import (
	"math"
	"sync"
	"time"

	"github.com/CodedInternet/goswerve/calcs"
	"github.com/CodedInternet/goswerve/onboard/claw"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/swerve"
	"github.com/pkg/errors"
)

const (
	simDriveLag     = 50 * time.Millisecond
	simAzimuthRate  = 720.0 // deg/s at full output
	simJointRate    = 400.0 // ticks/s at full output
	simCurrentScale = 40.0  // amps at full output
)

type simMotor struct {
	output   float64
	position float64 // ticks in the motor's own frame
	velocity float64 // ticks/s
	current  *float64
}

type simAzimuth struct {
	motor    int
	angle    float64 // physical heading, degrees
	offset   float64
	inverted float64
	encoder  float64
}

type simJoint struct {
	motor          int
	position       float64 // true position in ticks
	ticksPerDegree float64
}

// SimulatedBus is a crude plant for every motor and encoder the robot config
// names. Drive motors lag their output, azimuths and joints integrate it.
type SimulatedBus struct {
	mu        sync.Mutex
	freeSpeed float64 // drive ticks/s at full output
	motors    map[int]*simMotor
	drives    map[int]bool
	azimuths  map[int]*simAzimuth // by encoder id
	joints    map[int]*simJoint   // by motor id
	encoders  map[int]*simJoint   // by encoder id
	stale     map[int]bool
	failing   map[int]bool
}

func NewSimulatedBus(cfg RobotConfig) *SimulatedBus {
	d := cfg.Drive
	s := &SimulatedBus{
		freeSpeed: d.MaxSpeed / d.Geometry.WheelCircumference * d.Geometry.DriveGearRatio * d.CountsPerRev,
		motors:    make(map[int]*simMotor),
		drives:    make(map[int]bool),
		azimuths:  make(map[int]*simAzimuth),
		joints:    make(map[int]*simJoint),
		encoders:  make(map[int]*simJoint),
		stale:     make(map[int]bool),
		failing:   make(map[int]bool),
	}

	for _, m := range d.Modules {
		s.motor(m.DriveMotorID)
		s.motor(m.AngleMotorID)
		s.drives[m.DriveMotorID] = true
		s.azimuths[m.EncoderID] = s.azimuth(m)
	}
	for _, j := range []claw.JointConfig{cfg.Claw.Wrist, cfg.Claw.Arm} {
		s.motor(j.MotorID)
		if j.FollowerID != 0 {
			s.motor(j.FollowerID)
		}
		joint := &simJoint{motor: j.MotorID, ticksPerDegree: j.TicksPerDegree}
		s.joints[j.MotorID] = joint
		if j.EncoderID != 0 {
			s.encoders[j.EncoderID] = joint
		}
	}
	return s
}

func (s *SimulatedBus) motor(id int) *simMotor {
	m, ok := s.motors[id]
	if !ok {
		m = new(simMotor)
		s.motors[id] = m
	}
	return m
}

func (s *SimulatedBus) azimuth(m swerve.ModuleConfig) *simAzimuth {
	az := &simAzimuth{motor: m.AngleMotorID, offset: m.AngleOffset, inverted: 1, encoder: 1}
	if m.AngleInverted {
		az.inverted = -1
	}
	if m.EncoderInverted {
		az.encoder = -1
	}
	return az
}

func (s *SimulatedBus) SetOutput(motorID int, value float64, mode hardware.ControlMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.motors[motorID]
	if !ok {
		return errors.Errorf("no simulated motor %d", motorID)
	}
	if s.failing[motorID] {
		return errors.Errorf("simulated write failure on motor %d", motorID)
	}
	if mode == hardware.Neutral {
		value = 0
	}
	m.output = calcs.Clamp(value, -1, 1)
	return nil
}

func (s *SimulatedBus) ReadPosition(motorID int) hardware.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.motors[motorID]
	if !ok {
		return hardware.Reading{Stale: true}
	}
	return hardware.Reading{Value: m.position, Stale: s.stale[motorID]}
}

func (s *SimulatedBus) ReadVelocity(motorID int) hardware.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.motors[motorID]
	if !ok {
		return hardware.Reading{Stale: true}
	}
	return hardware.Reading{Value: m.velocity, Stale: s.stale[motorID]}
}

func (s *SimulatedBus) ReadAbsoluteAngle(encoderID int) hardware.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if az, ok := s.azimuths[encoderID]; ok {
		return hardware.Reading{Value: calcs.WrapDegrees(az.encoder * (az.angle + az.offset)), Stale: s.stale[encoderID]}
	}
	if j, ok := s.encoders[encoderID]; ok {
		return hardware.Reading{Value: calcs.WrapDegrees(j.position / j.ticksPerDegree), Stale: s.stale[encoderID]}
	}
	return hardware.Reading{Stale: true}
}

func (s *SimulatedBus) ReadCurrent(motorID int) hardware.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.motors[motorID]
	if !ok {
		return hardware.Reading{Stale: true}
	}
	amps := math.Abs(m.output) * simCurrentScale
	if m.current != nil {
		amps = *m.current
	}
	return hardware.Reading{Value: amps, Stale: s.stale[motorID]}
}

// Step advances the plant by dt.
func (s *SimulatedBus) Step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := dt.Seconds()
	alpha := math.Min(1, sec/simDriveLag.Seconds())
	for id := range s.drives {
		m := s.motors[id]
		m.velocity += (m.output*s.freeSpeed - m.velocity) * alpha
		m.position += m.velocity * sec
	}
	for _, az := range s.azimuths {
		m := s.motors[az.motor]
		m.velocity = m.output * simAzimuthRate
		az.angle = calcs.WrapDegrees(az.angle + az.inverted*m.velocity*sec)
	}
	for _, j := range s.joints {
		m := s.motors[j.motor]
		m.velocity = m.output * simJointRate
		m.position += m.velocity * sec
		j.position += m.velocity * sec
	}
}

// SetStale marks reads from a motor or encoder as stale.
func (s *SimulatedBus) SetStale(id int, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale[id] = stale
}

// SetFailing makes writes to a motor return an error.
func (s *SimulatedBus) SetFailing(id int, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = failing
}

// SetCurrent pins the current reported for a motor. Negative releases it.
func (s *SimulatedBus) SetCurrent(motorID int, amps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.motor(motorID)
	if amps < 0 {
		m.current = nil
		return
	}
	m.current = &amps
}

// SetJoint places a joint at a true position without moving its relative encoder.
func (s *SimulatedBus) SetJoint(motorID int, position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.joints[motorID]; ok {
		j.position = position
	}
}

func (s *SimulatedBus) Output(motorID int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.motors[motorID]; ok {
		return m.output
	}
	return 0
}

// Heading is the physical azimuth behind an encoder.
func (s *SimulatedBus) Heading(encoderID int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if az, ok := s.azimuths[encoderID]; ok {
		return az.angle
	}
	return 0
}

func (s *SimulatedBus) JointPosition(motorID int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.joints[motorID]; ok {
		return j.position
	}
	return 0
}

// Close puts every motor in neutral.
func (s *SimulatedBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.motors {
		m.output = 0
	}
	return nil
}
