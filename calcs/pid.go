package calcs

import "github.com/felixge/pidctrl"

// Gains are PID gains in output fraction per unit of error.
type Gains struct {
	P float64 `yaml:"p" json:"p"`
	I float64 `yaml:"i" json:"i"`
	D float64 `yaml:"d" json:"d"`
}

// Controller builds a PID controller limited to [-1, 1].
func (g Gains) Controller() *pidctrl.PIDController {
	return pidctrl.NewPIDController(g.P, g.I, g.D).SetOutputLimits(-1, 1)
}
