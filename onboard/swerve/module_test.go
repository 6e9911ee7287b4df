package swerve

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/CodedInternet/goswerve/calcs"
	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/edaniels/golog"
	. "github.com/smartystreets/goconvey/convey"
)

const tick = 20 * time.Millisecond

type output struct {
	value float64
	mode  hardware.ControlMode
}

type testBus struct {
	absolute map[int]float64
	velocity map[int]float64
	current  map[int]float64
	stale    map[int]bool
	outputs  map[int]output
	failing  bool
}

func newTestBus() *testBus {
	return &testBus{
		absolute: make(map[int]float64),
		velocity: make(map[int]float64),
		current:  make(map[int]float64),
		stale:    make(map[int]bool),
		outputs:  make(map[int]output),
	}
}

func (b *testBus) SetOutput(motorID int, value float64, mode hardware.ControlMode) error {
	if b.failing {
		return errors.New("simulated write failure")
	}
	b.outputs[motorID] = output{value, mode}
	return nil
}

func (b *testBus) ReadPosition(id int) hardware.Reading {
	return hardware.Reading{Stale: b.stale[id]}
}

func (b *testBus) ReadVelocity(id int) hardware.Reading {
	return hardware.Reading{Value: b.velocity[id], Stale: b.stale[id]}
}

func (b *testBus) ReadAbsoluteAngle(id int) hardware.Reading {
	return hardware.Reading{Value: b.absolute[id], Stale: b.stale[id]}
}

func (b *testBus) ReadCurrent(id int) hardware.Reading {
	return hardware.Reading{Value: b.current[id], Stale: b.stale[id]}
}

func testConfig() Config {
	return Config{
		WheelCircumference: 0.1016 * math.Pi,
		DriveGearRatio:     6.12,
		CountsPerRev:       2048,
		MaxSpeed:           3,
		DriveGains:         calcs.Gains{P: 0.05},
		AngleGains:         calcs.Gains{P: 0.01},
		Feedforward:        Feedforward{KS: 0.32 / 12, KV: 1.51 / 12, KA: 0.27 / 12},
		DriveCurrent:       CurrentLimitConfig{Enabled: true, Continuous: 35, Peak: 60, PeakDuration: 100 * time.Millisecond},
		AngleCurrent:       CurrentLimitConfig{Enabled: true, Continuous: 25, Peak: 40, PeakDuration: 100 * time.Millisecond},
	}
}

var frontLeft = ModuleConfig{Name: "frontLeft", DriveMotorID: 2, AngleMotorID: 3, EncoderID: 10, AngleOffset: 241.26}

func TestOptimize(t *testing.T) {
	Convey("targets more than 90 degrees away are reversed", t, func() {
		out := Optimize(ModuleState{Speed: 1, Angle: 91}, 0)
		So(out.Angle, ShouldAlmostEqual, 271)
		So(out.Speed, ShouldEqual, -1)

		out = Optimize(ModuleState{Speed: 1, Angle: 269}, 0)
		So(out.Angle, ShouldAlmostEqual, 89)
		So(out.Speed, ShouldEqual, -1)
	})

	Convey("targets within 90 degrees are kept", t, func() {
		out := Optimize(ModuleState{Speed: 1, Angle: 89}, 0)
		So(out, ShouldResemble, ModuleState{Speed: 1, Angle: 89})
	})

	Convey("exactly 90 degrees reverses", t, func() {
		out := Optimize(ModuleState{Speed: 2, Angle: 90}, 0)
		So(out.Angle, ShouldAlmostEqual, 270)
		So(out.Speed, ShouldEqual, -2)

		out = Optimize(ModuleState{Speed: 2, Angle: 270}, 0)
		So(out.Angle, ShouldAlmostEqual, 90)
		So(out.Speed, ShouldEqual, -2)
	})

	Convey("deltas wrap through zero", t, func() {
		out := Optimize(ModuleState{Speed: 1, Angle: 1}, 359)
		So(out, ShouldResemble, ModuleState{Speed: 1, Angle: 1})

		out = Optimize(ModuleState{Speed: 1, Angle: 200}, 350)
		So(out.Angle, ShouldAlmostEqual, 20)
		So(out.Speed, ShouldEqual, -1)
	})
}

func TestRampLimiter(t *testing.T) {
	Convey("jumps are bounded by rate times dt", t, func() {
		for _, ramp := range []float64{0.25, 1, 0.02} {
			r := RampLimiter{Ramp: ramp}
			prev := 0.0
			for _, target := range []float64{1, -1, 0.3, 0.31, -0.9} {
				out := r.Limit(prev, target, tick)
				So(math.Abs(out-prev), ShouldBeLessThanOrEqualTo, tick.Seconds()/ramp+1e-12)
				prev = out
			}
		}
	})

	Convey("a zero ramp is unlimited", t, func() {
		So(RampLimiter{}.Limit(-1, 1, tick), ShouldEqual, 1)
	})

	Convey("an open loop ramp of 0.25s takes 12.5 ticks to full", t, func() {
		r := RampLimiter{Ramp: 0.25}
		So(r.Limit(0, 1, tick), ShouldAlmostEqual, 0.08)
	})
}

func TestCurrentLimiter(t *testing.T) {
	cfg := CurrentLimitConfig{Enabled: true, Continuous: 35, Peak: 60, PeakDuration: 100 * time.Millisecond}

	Convey("sustained draw over peak is clamped after the peak duration", t, func() {
		l := NewCurrentLimiter(cfg)

		// entering overlimit starts the timer
		So(l.Limit(1, 80, tick), ShouldEqual, 1)
		So(l.Overlimit(), ShouldBeTrue)

		for i := 1; i < 5; i++ {
			So(l.Limit(1, 80, tick), ShouldEqual, 1)
		}
		So(l.Clamping(), ShouldBeFalse)

		// 5 ticks of 20ms after entering
		So(l.Limit(1, 80, tick), ShouldAlmostEqual, 35.0/80)
		So(l.Clamping(), ShouldBeTrue)

		Convey("and released once draw is back under continuous", func() {
			So(l.Limit(0.5, 50, tick), ShouldAlmostEqual, 0.5*35/50)
			So(l.Limit(0.5, 35, tick), ShouldEqual, 0.5)
			So(l.Overlimit(), ShouldBeFalse)
		})
	})

	Convey("a single spike over peak does not trip", t, func() {
		l := NewCurrentLimiter(cfg)
		So(l.Limit(1, 61, tick), ShouldEqual, 1)
		So(l.Overlimit(), ShouldBeTrue)

		for i := 0; i < 20; i++ {
			So(l.Limit(0.7, 50, tick), ShouldEqual, 0.7)
			So(l.Clamping(), ShouldBeFalse)
		}
		So(l.Overlimit(), ShouldBeFalse)
	})

	Convey("draw between continuous and peak never trips", t, func() {
		l := NewCurrentLimiter(cfg)
		for i := 0; i < 100; i++ {
			So(l.Limit(0.7, 55, tick), ShouldEqual, 0.7)
		}
	})

	Convey("below continuous is never clamped", t, func() {
		l := NewCurrentLimiter(cfg)
		So(l.Limit(-1, 10, tick), ShouldEqual, -1)
		So(l.Limit(-1, -30, tick), ShouldEqual, -1)
	})

	Convey("a disabled limiter passes everything", t, func() {
		l := NewCurrentLimiter(CurrentLimitConfig{Continuous: 1, Peak: 2})
		for i := 0; i < 10; i++ {
			So(l.Limit(1, 100, time.Second), ShouldEqual, 1)
		}
	})
}

func TestNewModule(t *testing.T) {
	Convey("angle offsets outside [0, 360) are rejected", t, func() {
		for _, offset := range []float64{-0.01, 360, 400, math.NaN()} {
			cfg := frontLeft
			cfg.AngleOffset = offset
			_, err := NewModule(cfg, testConfig(), newTestBus(), golog.NewTestLogger(t))
			So(err, ShouldHaveSameTypeAs, deverrors.ConfigError{})
		}

		cfg := frontLeft
		cfg.AngleOffset = 0
		_, err := NewModule(cfg, testConfig(), newTestBus(), golog.NewTestLogger(t))
		So(err, ShouldBeNil)
	})

	Convey("geometry must be positive", t, func() {
		common := testConfig()
		common.MaxSpeed = 0
		_, err := NewModule(frontLeft, common, newTestBus(), golog.NewTestLogger(t))
		So(err, ShouldNotBeNil)
	})
}

func TestModule(t *testing.T) {
	Convey("a module facing 10 degrees", t, func() {
		bus := newTestBus()
		bus.absolute[10] = frontLeft.AngleOffset + 10
		m, err := NewModule(frontLeft, testConfig(), bus, golog.NewTestLogger(t))
		So(err, ShouldBeNil)

		Convey("holds its azimuth while stopped", func() {
			m.SetDesired(ModuleState{Speed: 0, Angle: 60}, hardware.OpenLoop)
			m.Periodic(tick)

			So(bus.outputs[3].value, ShouldAlmostEqual, 0)
			So(bus.outputs[2].value, ShouldEqual, 0)
			So(m.Status().Measured.Angle, ShouldAlmostEqual, 10)
		})

		Convey("open loop drive is a fraction of max speed", func() {
			m.SetDesired(ModuleState{Speed: 1.5, Angle: 10}, hardware.OpenLoop)
			m.Periodic(tick)

			So(bus.outputs[2], ShouldResemble, output{0.5, hardware.OpenLoop})
			So(bus.outputs[3].mode, ShouldEqual, hardware.ClosedLoop)
		})

		Convey("the open loop ramp applies", func() {
			common := testConfig()
			common.OpenLoopRamp = 0.25
			m, _ := NewModule(frontLeft, common, bus, golog.NewTestLogger(t))
			m.SetDesired(ModuleState{Speed: 3, Angle: 10}, hardware.OpenLoop)
			m.Periodic(tick)
			So(bus.outputs[2].value, ShouldAlmostEqual, 0.08)
			m.Periodic(tick)
			So(bus.outputs[2].value, ShouldAlmostEqual, 0.16)
		})

		Convey("the closed loop ramp applies", func() {
			common := testConfig()
			common.ClosedLoopRamp = 0.5
			m, _ := NewModule(frontLeft, common, bus, golog.NewTestLogger(t))
			step := tick.Seconds() / common.ClosedLoopRamp

			prev := 0.0
			for _, speed := range []float64{3, 3, 3, -3, -3, 0} {
				m.SetDesired(ModuleState{Speed: speed, Angle: 10}, hardware.ClosedLoop)
				m.Periodic(tick)
				out := bus.outputs[2]
				So(out.mode, ShouldEqual, hardware.ClosedLoop)
				So(math.Abs(out.value-prev), ShouldBeLessThanOrEqualTo, step+1e-12)
				prev = out.value
			}

			m.SetDesired(ModuleState{Speed: 3, Angle: 10}, hardware.ClosedLoop)
			m.Periodic(tick)
			So(bus.outputs[2].value-prev, ShouldAlmostEqual, step)
		})

		Convey("azimuth error wraps through zero", func() {
			bus.absolute[10] = frontLeft.AngleOffset - 1
			m.SetDesired(ModuleState{Speed: 1, Angle: 1}, hardware.OpenLoop)
			m.Periodic(tick)

			// 359 -> 1 is +2 degrees
			So(bus.outputs[3].value, ShouldAlmostEqual, 0.02)
			So(bus.outputs[2].value, ShouldBeGreaterThan, 0)
		})

		Convey("far targets reverse the wheel", func() {
			m.SetDesired(ModuleState{Speed: 1.5, Angle: 190}, hardware.OpenLoop)
			m.Periodic(tick)

			So(bus.outputs[2].value, ShouldAlmostEqual, -0.5)
			So(bus.outputs[3].value, ShouldAlmostEqual, 0)
		})

		Convey("closed loop adds feedforward to the velocity PID", func() {
			m.SetDesired(ModuleState{Speed: 1, Angle: 10}, hardware.ClosedLoop)
			// wheel already at 1 m/s
			bus.velocity[2] = 1 / (0.1016 * math.Pi) * 6.12 * 2048
			m.Periodic(tick)
			m.Periodic(tick)

			So(bus.outputs[2].mode, ShouldEqual, hardware.ClosedLoop)
			So(bus.outputs[2].value, ShouldAlmostEqual, 0.32/12+1.51/12, 1e-6)
			So(m.Status().Measured.Speed, ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("inverted drives are negated on the wire", func() {
			cfg := frontLeft
			cfg.DriveInverted = true
			m, _ := NewModule(cfg, testConfig(), bus, golog.NewTestLogger(t))
			m.SetDesired(ModuleState{Speed: 1.5, Angle: 10}, hardware.OpenLoop)
			m.Periodic(tick)

			So(bus.outputs[2].value, ShouldAlmostEqual, -0.5)
			So(m.Status().DriveOutput, ShouldAlmostEqual, 0.5)
		})

		Convey("stale readings hold the last outputs", func() {
			m.SetDesired(ModuleState{Speed: 1.5, Angle: 10}, hardware.OpenLoop)
			m.Periodic(tick)

			bus.stale[10] = true
			m.SetDesired(ModuleState{Speed: -3, Angle: 10}, hardware.OpenLoop)
			m.Periodic(tick)

			So(bus.outputs[2].value, ShouldAlmostEqual, 0.5)
			So(m.Status().Stale, ShouldBeTrue)

			delete(bus.stale, 10)
			m.Periodic(tick)
			So(bus.outputs[2].value, ShouldAlmostEqual, -1)
			So(m.Status().Stale, ShouldBeFalse)
		})

		Convey("drive current over peak is clamped after the peak duration", func() {
			bus.current[2] = 70
			m.SetDesired(ModuleState{Speed: 3, Angle: 10}, hardware.OpenLoop)
			for i := 0; i < 5; i++ {
				m.Periodic(tick)
				So(bus.outputs[2].value, ShouldEqual, 1)
			}
			m.Periodic(tick)
			So(bus.outputs[2].value, ShouldAlmostEqual, 35.0/70)
			So(m.Status().DriveOverlimit, ShouldBeTrue)
		})

		Convey("write failures are reported", func() {
			bus.failing = true
			m.Periodic(tick)
			So(m.Status().WriteFailed, ShouldBeTrue)
		})
	})
}
