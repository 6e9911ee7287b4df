package hardware

import (
	"sort"
	"sync"
	"time"

	"github.com/CodedInternet/goswerve/onboard/canbus"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// how long Close lets in flight commands finish before stopping a node
const closeFlushTimeout = 50 * time.Millisecond

type BusConfig struct {
	MotorIDs       []int
	EncoderIDs     []int
	StaleAfter     time.Duration
	StatusInterval time.Duration
	NodeVersion    string
	AllowDevNodes  bool
}

// Actuator is the host side view of one motor.
type Actuator struct {
	Node *ControlNode
	Last float64
	Mode ControlMode
}

// CANActuatorBus implements ActuatorBus over nodes sharing one CAN bus.
// Outputs are fire and forget and reads come from the streamed status cache.
type CANActuatorBus struct {
	bus       canbus.CANBusInterface
	status    *StatusCache
	logger    golog.Logger
	mu        sync.Mutex
	actuators map[int]*Actuator
	encoders  map[int]*ControlNode
}

func NewCANActuatorBus(bus canbus.CANBusInterface, cfg BusConfig, logger golog.Logger) (*CANActuatorBus, error) {
	if cfg.NodeVersion == "" {
		cfg.NodeVersion = NODE_VERSION
	}

	b := &CANActuatorBus{
		bus:       bus,
		status:    NewStatusCache(cfg.StaleAfter),
		logger:    logger,
		actuators: make(map[int]*Actuator),
		encoders:  make(map[int]*ControlNode),
	}

	start := func(id int) (*ControlNode, error) {
		node := NewControlNode(bus, uint32(id), b.status, logger)
		if err := node.CheckVersion(cfg.NodeVersion, cfg.AllowDevNodes); err != nil {
			node.Stop()
			return nil, err
		}
		if cfg.StatusInterval > 0 {
			if err := node.SetUpdateInterval(cfg.StatusInterval); err != nil {
				node.Stop()
				return nil, errors.Wrapf(err, "node %d update interval", id)
			}
		}
		return node, nil
	}

	for _, id := range cfg.MotorIDs {
		if _, dup := b.actuators[id]; dup {
			b.stopNodes()
			return nil, errors.Errorf("motor %d configured twice", id)
		}
		node, err := start(id)
		if err != nil {
			b.stopNodes()
			return nil, err
		}
		b.actuators[id] = &Actuator{Node: node, Mode: Neutral}
	}

	for _, id := range cfg.EncoderIDs {
		if id == 0 {
			continue
		}
		if _, dup := b.actuators[id]; dup {
			b.stopNodes()
			return nil, errors.Errorf("encoder %d shares an id with a motor", id)
		}
		if _, dup := b.encoders[id]; dup {
			continue
		}
		node, err := start(id)
		if err != nil {
			b.stopNodes()
			return nil, err
		}
		b.encoders[id] = node
	}

	logger.Infow("actuator bus ready", "motors", len(b.actuators), "encoders", len(b.encoders))
	return b, nil
}

func (b *CANActuatorBus) SetOutput(motorID int, value float64, mode ControlMode) error {
	b.mu.Lock()
	act, ok := b.actuators[motorID]
	if ok {
		act.Last, act.Mode = value, mode
	}
	b.mu.Unlock()

	if !ok {
		return errors.Errorf("unknown motor %d", motorID)
	}
	return act.Node.SetOutput(value, mode)
}

func (b *CANActuatorBus) ReadPosition(sensorID int) Reading {
	return b.status.Read(uint32(sensorID), SignalPosition)
}

func (b *CANActuatorBus) ReadVelocity(sensorID int) Reading {
	return b.status.Read(uint32(sensorID), SignalVelocity)
}

func (b *CANActuatorBus) ReadAbsoluteAngle(encoderID int) Reading {
	return b.status.Read(uint32(encoderID), SignalAbsolute)
}

func (b *CANActuatorBus) ReadCurrent(motorID int) Reading {
	return b.status.Read(uint32(motorID), SignalCurrent)
}

// outputs returns the last output written to every motor, keyed by id.
func (b *CANActuatorBus) outputs() map[int]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[int]float64, len(b.actuators))
	for id, act := range b.actuators {
		out[id] = act.Last
	}
	return out
}

// Nodes lists every node id with the firmware it reported.
func (b *CANActuatorBus) Nodes() map[uint32]string {
	out := make(map[uint32]string, len(b.actuators)+len(b.encoders))
	for _, act := range b.actuators {
		out[act.Node.ID()] = act.Node.Version()
	}
	for _, node := range b.encoders {
		out[node.ID()] = node.Version()
	}
	return out
}

// Close stops every motor before releasing the nodes and the bus.
func (b *CANActuatorBus) Close() error {
	var first error

	ids := make([]int, 0, len(b.actuators))
	for id := range b.actuators {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		node := b.actuators[id].Node
		if err := node.Flush(closeFlushTimeout); err != nil {
			b.logger.Warnw("stopping with commands in flight", "motor", id, "error", err)
		}
		if err := node.AllStop(); err != nil {
			b.logger.Warnw("all stop not acknowledged", "motor", id, "error", err)
			if first == nil {
				first = errors.Wrapf(err, "stop motor %d", id)
			}
		}
	}

	b.stopNodes()
	if err := b.bus.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (b *CANActuatorBus) stopNodes() {
	for _, act := range b.actuators {
		act.Node.Stop()
	}
	for _, node := range b.encoders {
		node.Stop()
	}
}
