package swerve

import (
	"math"
	"time"

	"github.com/CodedInternet/goswerve/calcs"
)

// RampLimiter bounds how fast an output may move. Ramp is the time in seconds
// to go from neutral to full output; zero leaves the output unlimited.
type RampLimiter struct {
	Ramp float64
}

func (r RampLimiter) Limit(prev, target float64, dt time.Duration) float64 {
	if r.Ramp <= 0 {
		return target
	}
	step := dt.Seconds() / r.Ramp
	return calcs.Clamp(target, prev-step, prev+step)
}

type CurrentLimitConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Continuous   float64       `yaml:"continuous"`
	Peak         float64       `yaml:"peak"`
	PeakDuration time.Duration `yaml:"peakDuration"`
}

type limitState int

const (
	limitNormal limitState = iota
	limitOver
)

// CurrentLimiter lets draw above Peak through for PeakDuration, then scales
// the output down to the continuous limit until draw falls back to Continuous.
// Dropping back to Peak or below before the allowance runs out resets it.
type CurrentLimiter struct {
	cfg     CurrentLimitConfig
	state   limitState
	elapsed time.Duration
}

func NewCurrentLimiter(cfg CurrentLimitConfig) *CurrentLimiter {
	return &CurrentLimiter{cfg: cfg}
}

func (l *CurrentLimiter) Limit(output, current float64, dt time.Duration) float64 {
	if !l.cfg.Enabled {
		return output
	}

	amps := math.Abs(current)
	switch l.state {
	case limitNormal:
		if amps > l.cfg.Peak {
			l.state = limitOver
			l.elapsed = 0
		}
	case limitOver:
		if amps <= l.cfg.Continuous {
			l.state = limitNormal
			l.elapsed = 0
			return output
		}
		if !l.Clamping() && amps <= l.cfg.Peak {
			l.state = limitNormal
			l.elapsed = 0
			return output
		}
		l.elapsed += dt
	}

	if l.Clamping() && amps > l.cfg.Continuous {
		return output * l.cfg.Continuous / amps
	}
	return output
}

// Overlimit reports whether draw has gone over peak and not yet recovered.
func (l *CurrentLimiter) Overlimit() bool {
	return l.state == limitOver
}

// Clamping reports whether the peak allowance has run out.
func (l *CurrentLimiter) Clamping() bool {
	return l.state == limitOver && l.elapsed >= l.cfg.PeakDuration
}
