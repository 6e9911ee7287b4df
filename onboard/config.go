package onboard

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/CodedInternet/goswerve/calcs"
	"github.com/CodedInternet/goswerve/onboard/claw"
	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/swerve"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	BusSocketCAN = "socketcan"
	BusSLCAN     = "slcan"
	BusSim       = "sim"
)

type BusSettings struct {
	Kind           string        `yaml:"kind"`
	Interface      string        `yaml:"interface"`
	Port           string        `yaml:"port"`
	Baud           int           `yaml:"baud"`
	Bitrate        int           `yaml:"bitrate"`
	StaleAfter     time.Duration `yaml:"staleAfter"`
	StatusInterval time.Duration `yaml:"statusInterval"`
	NodeVersion    string        `yaml:"nodeVersion"`
	AllowDevNodes  bool          `yaml:"allowDevNodes"`
}

type DriveConfig struct {
	Geometry           ChassisGeometry `yaml:"geometry"`
	CountsPerRev       float64         `yaml:"countsPerRev"`
	MaxSpeed           float64         `yaml:"maxSpeed"`           // m/s
	MaxAngularVelocity float64         `yaml:"maxAngularVelocity"` // rad/s

	DriveGains     calcs.Gains               `yaml:"driveGains"`
	AngleGains     calcs.Gains               `yaml:"angleGains"`
	Feedforward    swerve.Feedforward        `yaml:"feedforward"`
	OpenLoopRamp   float64                   `yaml:"openLoopRamp"`
	ClosedLoopRamp float64                   `yaml:"closedLoopRamp"`
	DriveCurrent   swerve.CurrentLimitConfig `yaml:"driveCurrent"`
	AngleCurrent   swerve.CurrentLimitConfig `yaml:"angleCurrent"`

	Modules []swerve.ModuleConfig `yaml:"modules"`
}

// Common is the part of the drive config shared by every module.
func (d DriveConfig) Common() swerve.Config {
	return swerve.Config{
		WheelCircumference: d.Geometry.WheelCircumference,
		DriveGearRatio:     d.Geometry.DriveGearRatio,
		CountsPerRev:       d.CountsPerRev,
		MaxSpeed:           d.MaxSpeed,
		DriveGains:         d.DriveGains,
		AngleGains:         d.AngleGains,
		Feedforward:        d.Feedforward,
		OpenLoopRamp:       d.OpenLoopRamp,
		ClosedLoopRamp:     d.ClosedLoopRamp,
		DriveCurrent:       d.DriveCurrent,
		AngleCurrent:       d.AngleCurrent,
	}
}

type RobotConfig struct {
	Bus               BusSettings   `yaml:"bus"`
	Drive             DriveConfig   `yaml:"drive"`
	Claw              claw.Config   `yaml:"claw"`
	LoopPeriod        time.Duration `yaml:"loopPeriod"`
	TelemetryInterval time.Duration `yaml:"telemetryInterval"`
}

// DefaultConfig is the competition robot: SDS MK4 L3 modules on Falcons.
func DefaultConfig() RobotConfig {
	clawCfg := claw.DefaultConfig()
	clawCfg.Wrist.Gains = calcs.Gains{P: 0.02}
	clawCfg.Arm.Gains = calcs.Gains{P: 0.02}

	return RobotConfig{
		Bus: BusSettings{
			Kind:           BusSocketCAN,
			Interface:      "can0",
			Baud:           115200,
			Bitrate:        1000000,
			StaleAfter:     100 * time.Millisecond,
			StatusInterval: 10 * time.Millisecond,
			NodeVersion:    hardware.NODE_VERSION,
		},
		Drive: DriveConfig{
			Geometry: ChassisGeometry{
				TrackWidth:         0.5842,
				WheelBase:          0.5969,
				WheelCircumference: 0.1016 * math.Pi,
				DriveGearRatio:     6.12,
				AngleGearRatio:     150.0 / 7.0,
			},
			CountsPerRev:       2048,
			MaxSpeed:           3,
			MaxAngularVelocity: 3,
			DriveGains:         calcs.Gains{P: 0.05},
			AngleGains:         calcs.Gains{P: 0.01},
			Feedforward:        swerve.Feedforward{KS: 0.32 / 12, KV: 1.51 / 12, KA: 0.27 / 12},
			OpenLoopRamp:       0.25,
			ClosedLoopRamp:     0,
			DriveCurrent:       swerve.CurrentLimitConfig{Enabled: true, Continuous: 35, Peak: 60, PeakDuration: 100 * time.Millisecond},
			AngleCurrent:       swerve.CurrentLimitConfig{Enabled: true, Continuous: 25, Peak: 40, PeakDuration: 100 * time.Millisecond},
			Modules: []swerve.ModuleConfig{
				{Name: moduleNames[FrontLeft], DriveMotorID: 2, AngleMotorID: 3, EncoderID: 10, AngleOffset: 241.26},
				{Name: moduleNames[FrontRight], DriveMotorID: 6, AngleMotorID: 7, EncoderID: 12, AngleOffset: 83.14},
				{Name: moduleNames[RearLeft], DriveMotorID: 8, AngleMotorID: 1, EncoderID: 9, AngleOffset: 55.37},
				{Name: moduleNames[RearRight], DriveMotorID: 4, AngleMotorID: 5, EncoderID: 11, AngleOffset: 346.20},
			},
		},
		Claw:              clawCfg,
		LoopPeriod:        20 * time.Millisecond,
		TelemetryInterval: 100 * time.Millisecond,
	}
}

// UnmarshalYAML fills anything the document leaves out from DefaultConfig.
func (c *RobotConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain RobotConfig
	*c = DefaultConfig()
	return unmarshal((*plain)(c))
}

func ParseConfig(raw []byte) (RobotConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, cfg.Validate()
}

func LoadConfig(path string) (RobotConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RobotConfig{}, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(raw)
}

func (c RobotConfig) Validate() error {
	switch c.Bus.Kind {
	case BusSocketCAN, BusSLCAN, BusSim:
	default:
		return deverrors.ConfigError{Field: "bus.kind", Value: c.Bus.Kind, Reason: "must be socketcan, slcan or sim"}
	}
	if c.Bus.StaleAfter <= 0 {
		return deverrors.ConfigError{Field: "bus.staleAfter", Value: c.Bus.StaleAfter, Reason: "must be positive"}
	}
	if c.LoopPeriod <= 0 {
		return deverrors.ConfigError{Field: "loopPeriod", Value: c.LoopPeriod, Reason: "must be positive"}
	}

	d := c.Drive
	for field, v := range map[string]float64{
		"drive.geometry.trackWidth": d.Geometry.TrackWidth,
		"drive.geometry.wheelBase":  d.Geometry.WheelBase,
		"drive.maxAngularVelocity":  d.MaxAngularVelocity,
	} {
		if !calcs.Finite(v) || v <= 0 {
			return deverrors.ConfigError{Field: field, Value: v, Reason: "must be positive"}
		}
	}
	if len(d.Modules) != numModules {
		return deverrors.ConfigError{Field: "drive.modules", Value: len(d.Modules), Reason: fmt.Sprintf("need exactly %d", numModules)}
	}

	motors := make(map[int]string)
	claim := func(id int, owner string) error {
		if id == 0 {
			return nil
		}
		if prev, ok := motors[id]; ok {
			return deverrors.ConfigError{Field: owner, Value: id, Reason: "already used by " + prev}
		}
		motors[id] = owner
		return nil
	}
	for _, m := range d.Modules {
		for owner, id := range map[string]int{
			m.Name + ".driveMotor": m.DriveMotorID,
			m.Name + ".angleMotor": m.AngleMotorID,
			m.Name + ".encoder":    m.EncoderID,
		} {
			if err := claim(id, owner); err != nil {
				return err
			}
		}
	}
	for owner, id := range map[string]int{
		"claw.wrist.motor":    c.Claw.Wrist.MotorID,
		"claw.wrist.follower": c.Claw.Wrist.FollowerID,
		"claw.wrist.encoder":  c.Claw.Wrist.EncoderID,
		"claw.arm.motor":      c.Claw.Arm.MotorID,
		"claw.arm.follower":   c.Claw.Arm.FollowerID,
		"claw.arm.encoder":    c.Claw.Arm.EncoderID,
	} {
		if err := claim(id, owner); err != nil {
			return err
		}
	}
	return nil
}

// HardwareBus lists every node the robot expects to find on the bus.
func (c RobotConfig) HardwareBus() hardware.BusConfig {
	cfg := hardware.BusConfig{
		StaleAfter:     c.Bus.StaleAfter,
		StatusInterval: c.Bus.StatusInterval,
		NodeVersion:    c.Bus.NodeVersion,
		AllowDevNodes:  c.Bus.AllowDevNodes,
	}
	for _, m := range c.Drive.Modules {
		cfg.MotorIDs = append(cfg.MotorIDs, m.DriveMotorID, m.AngleMotorID)
		cfg.EncoderIDs = append(cfg.EncoderIDs, m.EncoderID)
	}
	for _, j := range []claw.JointConfig{c.Claw.Wrist, c.Claw.Arm} {
		cfg.MotorIDs = append(cfg.MotorIDs, j.MotorID)
		if j.FollowerID != 0 {
			cfg.MotorIDs = append(cfg.MotorIDs, j.FollowerID)
		}
		cfg.EncoderIDs = append(cfg.EncoderIDs, j.EncoderID)
	}
	return cfg
}
