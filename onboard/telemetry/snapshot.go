// Package telemetry carries per-tick snapshots out of the control loop.
package telemetry

import (
	"time"

	"github.com/CodedInternet/goswerve/onboard/claw"
	"github.com/CodedInternet/goswerve/onboard/swerve"
)

// ChassisCommand is the last body velocity accepted by the robot.
type ChassisCommand struct {
	Vx    float64 `json:"vx"`
	Vy    float64 `json:"vy"`
	Omega float64 `json:"omega"`
	Mode  string  `json:"mode"`
}

type Flags struct {
	SensorStale    bool `json:"sensorStale"`
	CurrentLimited bool `json:"currentLimited"`
	WriteFailed    bool `json:"writeFailed"`
	InvalidCommand bool `json:"invalidCommand"`
}

func (f Flags) Any() bool {
	return f.SensorStale || f.CurrentLimited || f.WriteFailed || f.InvalidCommand
}

type Snapshot struct {
	Tick    uint64          `json:"tick"`
	Time    time.Time       `json:"time"`
	Chassis ChassisCommand  `json:"chassis"`
	Modules []swerve.Status `json:"modules"`
	Claw    claw.Status     `json:"claw"`
	Flags   Flags           `json:"flags"`
}

// Publisher receives a snapshot every tick and must not block.
type Publisher interface {
	Publish(s Snapshot)
}

// Multi fans a snapshot out to several publishers in order.
type Multi []Publisher

func (m Multi) Publish(s Snapshot) {
	for _, p := range m {
		p.Publish(s)
	}
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(s Snapshot)

func (f PublisherFunc) Publish(s Snapshot) {
	f(s)
}
