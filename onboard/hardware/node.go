package hardware

import (
	"bytes"
	"sync"
	"time"

	"github.com/CodedInternet/goswerve/onboard/canbus"
	"github.com/Masterminds/semver"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

const (
	NODE_VERSION = "~0.1.0"

	nodeRxBuffer = 16
)

// ControlNode is a single motor controller or encoder on the bus.
type ControlNode struct {
	id      uint32
	bus     canbus.CANBusInterface
	status  *StatusCache
	logger  golog.Logger
	version string

	lock       sync.Mutex // serialises writes to the bus
	cmdLock    sync.Mutex
	pending    sync.WaitGroup
	pendingCmd map[uint16]NodeCommand

	rx       chan canbus.CANMsg
	done     chan struct{}
	stopOnce sync.Once
}

func NewControlNode(bus canbus.CANBusInterface, id uint32, status *StatusCache, logger golog.Logger) *ControlNode {
	n := newControlNode(bus, id, status, logger)
	go n.listen()
	return n
}

func newControlNode(bus canbus.CANBusInterface, id uint32, status *StatusCache, logger golog.Logger) *ControlNode {
	n := &ControlNode{
		id:         id,
		bus:        bus,
		status:     status,
		logger:     logger,
		pendingCmd: make(map[uint16]NodeCommand),
		rx:         make(chan canbus.CANMsg, nodeRxBuffer),
		done:       make(chan struct{}),
	}
	bus.AddListener(id, n.rx)
	return n
}

func (n *ControlNode) ID() uint32 {
	return n.id
}

// Version is the firmware version reported by the last CheckVersion.
func (n *ControlNode) Version() string {
	return n.version
}

// CheckVersion asks the node for its firmware version and refuses nodes
// outside constraint. "DEV" builds are only accepted with allowDev.
func (n *ControlNode) CheckVersion(constraint string, allowDev bool) error {
	resp, err := newCommand(n, CMD_VERSION, nil, false).Process()
	if err != nil {
		return errors.Wrapf(err, "node %d version", n.id)
	}

	versionString := string(bytes.TrimRight(resp.Data, "\x00"))
	n.version = versionString

	if versionString == "DEV" {
		if !allowDev {
			return errors.Errorf("unable to use node %d: running a dev build", n.id)
		}
		n.logger.Warnw("node is running a dev build", "node", n.id)
		return nil
	}

	semVer, err := semver.NewVersion(versionString)
	if err != nil {
		return errors.Wrapf(err, "node %d reported version %q", n.id, versionString)
	}

	semVerConstraint, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Wrapf(err, "version constraint %q", constraint)
	}

	if !semVerConstraint.Check(semVer) {
		return errors.Errorf("unable to use node %d: received version %s - require %s", n.id, versionString, constraint)
	}

	n.logger.Debugw("node version ok", "node", n.id, "version", versionString)
	return nil
}

// SendMsg addresses msg to this node and puts it on the bus.
func (n *ControlNode) SendMsg(msg canbus.CANMsg) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	msg.ID = n.id | canbus.CANHostFlag
	return n.bus.SendMsg(msg)
}

// SetOutput is fire and forget; the next status frame is the only confirmation.
func (n *ControlNode) SetOutput(value float64, mode ControlMode) error {
	return n.SendMsg(canbus.CANMsg{
		Cmd:  CMD_SET_OUTPUT,
		Data: outputPayload(value, mode),
	})
}

// SetUpdateInterval sets how often the node streams its status frames.
func (n *ControlNode) SetUpdateInterval(d time.Duration) error {
	_, err := newCommand(n, CMD_UPDATE_INTERVAL, intervalPayload(d), true).Process()
	return err
}

// AllStop drops anything in flight and asks the node to go neutral.
func (n *ControlNode) AllStop() error {
	n.abortPending()
	_, err := newCommand(n, CMD_ALLSTOP, nil, true).Process()
	return err
}

// Flush waits for in flight commands to be acknowledged or give up.
func (n *ControlNode) Flush(timeout time.Duration) error {
	ready := make(chan struct{})

	go func() {
		defer close(ready)
		n.pending.Wait()
	}()

	select {
	case <-ready:
		return nil
	case <-time.After(timeout):
		return errors.Errorf("node %d: timed out waiting for pending commands", n.id)
	}
}

// Stop aborts pending commands and shuts the listener down.
func (n *ControlNode) Stop() {
	n.stopOnce.Do(func() {
		n.abortPending()
		close(n.done)
	})
}

func (n *ControlNode) listen() {
	for {
		select {
		case <-n.done:
			return

		case msg := <-n.rx:
			switch msg.Cmd {
			case CMD_STATUS:
				signal, value, err := decodeStatus(msg.Data)
				if err != nil {
					n.logger.Debugw("bad status frame", "node", n.id, "error", err)
					continue
				}
				n.status.Update(n.id, signal, value)

			default:
				n.routeACK(msg)
			}
		}
	}
}

func (n *ControlNode) register(cmd NodeCommand) error {
	n.cmdLock.Lock()
	defer n.cmdLock.Unlock()

	if _, ok := n.pendingCmd[cmd.ID()]; ok {
		return ERR_CMD_BUSY
	}
	n.pendingCmd[cmd.ID()] = cmd
	return nil
}

func (n *ControlNode) unregister(cmd NodeCommand) {
	n.cmdLock.Lock()
	defer n.cmdLock.Unlock()

	if n.pendingCmd[cmd.ID()] == cmd {
		delete(n.pendingCmd, cmd.ID())
	}
}

func (n *ControlNode) abortPending() {
	n.cmdLock.Lock()
	defer n.cmdLock.Unlock()

	for _, cmd := range n.pendingCmd {
		cmd.Abort()
	}
}

func (n *ControlNode) routeACK(msg canbus.CANMsg) {
	n.cmdLock.Lock()
	cmd, ok := n.pendingCmd[msg.Cmd]
	n.cmdLock.Unlock()

	if !ok {
		n.logger.Debugw("unsolicited reply", "node", n.id, "cmd", msg.Cmd)
		return
	}
	cmd.Ack(msg)
}
