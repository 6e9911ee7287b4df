// Package onboard wires chassis kinematics, the four swerve modules and the
// claw into one robot driven by a fixed rate loop.
package onboard

import (
	"context"
	"sync"
	"time"

	"github.com/CodedInternet/goswerve/calcs"
	"github.com/CodedInternet/goswerve/onboard/claw"
	"github.com/CodedInternet/goswerve/onboard/command"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/swerve"
	"github.com/CodedInternet/goswerve/onboard/telemetry"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// Device is what operators and the transport layers see of the robot.
type Device interface {
	DriveChassis(vx, vy, omega float64, mode hardware.ControlMode) error
	RequestPose(pose claw.Pose) error
	IsAtTarget() bool
	Stop()
	Snapshot() telemetry.Snapshot
}

// Robot owns every controller. Upstream calls and Periodic are serialised so
// the controllers themselves stay single threaded.
type Robot struct {
	mu        sync.Mutex
	cfg       RobotConfig
	modules   [numModules]*swerve.Module
	claw      *claw.PoseController
	scheduler *command.Scheduler
	publisher telemetry.Publisher
	logger    golog.Logger
	now       func() time.Time

	chassis telemetry.ChassisCommand
	targets [numModules]swerve.ModuleState
	invalid bool
	tick    uint64
	last    telemetry.Snapshot
}

func NewRobot(cfg RobotConfig, bus hardware.ActuatorBus, publisher telemetry.Publisher, logger golog.Logger) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Robot{
		cfg:       cfg,
		scheduler: command.NewScheduler(logger.Named("scheduler")),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		chassis:   telemetry.ChassisCommand{Mode: hardware.OpenLoop.String()},
	}

	common := cfg.Drive.Common()
	for i, mc := range cfg.Drive.Modules {
		m, err := swerve.NewModule(mc, common, bus, logger.Named(mc.Name))
		if err != nil {
			return nil, errors.Wrapf(err, "module %s", mc.Name)
		}
		r.modules[i] = m
	}

	var err error
	r.claw, err = claw.NewPoseController(cfg.Claw, bus, logger.Named("claw"))
	if err != nil {
		return nil, errors.Wrap(err, "claw")
	}

	return r, nil
}

// DriveChassis sets new module targets from a body velocity. A rejected
// command leaves the previous targets in place.
func (r *Robot) DriveChassis(vx, vy, omega float64, mode hardware.ControlMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mode != hardware.OpenLoop && mode != hardware.ClosedLoop {
		return errors.Errorf("unable to drive in %s", mode)
	}

	// clamping would turn an infinite omega into a valid one
	capped := omega
	if calcs.Finite(omega) {
		limit := r.cfg.Drive.MaxAngularVelocity
		capped = calcs.Clamp(omega, -limit, limit)
	}
	states, err := r.cfg.Drive.Geometry.ModuleTargets(vx, vy, capped)
	if err != nil {
		if !r.invalid {
			r.logger.Warnw("chassis command rejected", "vx", vx, "vy", vy, "omega", omega)
		}
		r.invalid = true
		return err
	}
	r.invalid = false

	r.targets = Desaturate(states, r.cfg.Drive.MaxSpeed)
	for i, m := range r.modules {
		m.SetDesired(r.targets[i], mode)
	}
	r.chassis = telemetry.ChassisCommand{Vx: vx, Vy: vy, Omega: omega, Mode: mode.String()}
	return nil
}

// RequestPose schedules a move to pose, interrupting any move in progress.
func (r *Robot) RequestPose(pose claw.Pose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduler.Schedule(claw.NewPoseCommand(r.claw, pose))
}

func (r *Robot) IsAtTarget() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claw.IsAtTarget()
}

// Stop brings the chassis to rest with the wheels where they point. The claw
// keeps holding its last target.
func (r *Robot) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scheduler.Cancel()
	for i, m := range r.modules {
		r.targets[i].Speed = 0
		m.SetDesired(r.targets[i], hardware.OpenLoop)
	}
	r.chassis = telemetry.ChassisCommand{Mode: hardware.OpenLoop.String()}
	r.logger.Infow("robot stopped")
}

// Periodic runs one control tick: modules, then the claw, then the active command.
func (r *Robot) Periodic(dt time.Duration) {
	r.mu.Lock()
	r.tick++
	for _, m := range r.modules {
		m.Periodic(dt)
	}
	r.claw.Periodic(dt)
	r.scheduler.Run()
	s := r.snapshot()
	r.last = s
	r.mu.Unlock()

	if r.publisher != nil {
		r.publisher.Publish(s)
	}
}

func (r *Robot) snapshot() telemetry.Snapshot {
	s := telemetry.Snapshot{
		Tick:    r.tick,
		Time:    r.now(),
		Chassis: r.chassis,
		Modules: make([]swerve.Status, len(r.modules)),
		Claw:    r.claw.Status(),
	}
	for i, m := range r.modules {
		st := m.Status()
		s.Modules[i] = st
		s.Flags.SensorStale = s.Flags.SensorStale || st.Stale
		s.Flags.CurrentLimited = s.Flags.CurrentLimited || st.DriveOverlimit || st.AngleOverlimit
		s.Flags.WriteFailed = s.Flags.WriteFailed || st.WriteFailed
	}
	s.Flags.SensorStale = s.Flags.SensorStale || s.Claw.Stale
	s.Flags.InvalidCommand = r.invalid
	return s
}

// Snapshot is the state at the end of the last tick.
func (r *Robot) Snapshot() telemetry.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// RunLoop calls tick every period until ctx is cancelled. dt is the measured
// time since the previous tick.
func RunLoop(ctx context.Context, period time.Duration, tick func(dt time.Duration)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			tick(dt)
		}
	}
}
