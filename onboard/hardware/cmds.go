package hardware

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/CodedInternet/goswerve/onboard/canbus"
	"github.com/pkg/errors"
)

const (
	CMD_ALLSTOP         = 0x0000
	CMD_UPDATE_INTERVAL = 0x0030
	CMD_SET_OUTPUT      = 0x0050
	CMD_STATUS          = 0x0110
	CMD_VERSION         = 0x03E0

	CMD_MAX_RETRIES = 5
	CMD_TIMEOUT     = 5 * time.Millisecond
)

var (
	ERR_MAX_RETRIES = errors.New("CMD_MAX_RETRIES reached while attempting to send")
	ERR_SEND_ABORT  = errors.New("send has been aborted")
	ERR_CMD_BUSY    = errors.New("command already in flight on this node")
)

type NodeCommand interface {
	ID() uint16
	Process() (resp canbus.CANMsg, err error)
	Ack(msg canbus.CANMsg)
	Msg() canbus.CANMsg
	Abort() error
}

// BaseCommand is a request the node must acknowledge. Echo commands are
// acknowledged with the same payload, the rest with any reply on the same cmd.
type BaseCommand struct {
	node      *ControlNode
	msg       canbus.CANMsg
	echo      bool
	ack       chan canbus.CANMsg
	abort     chan struct{}
	abortOnce sync.Once
}

// Sends the current command and waits for a response/acknowledgment from the node.
// Will retry commands that are not acknowledged within CMD_TIMEOUT, sending at most CMD_MAX_RETRIES times.
// Can be canceled with Abort.
// Returns the response to the message for upstream processing should it be necessary.
func (c *BaseCommand) Process() (resp canbus.CANMsg, err error) {
	c.node.pending.Add(1)
	defer c.node.pending.Done()

	if c.ack == nil {
		c.ack = make(chan canbus.CANMsg, 1)
	}
	if c.abort == nil {
		c.abort = make(chan struct{})
	}

	if err = c.node.register(c); err != nil {
		return resp, err
	}
	defer c.node.unregister(c)

	msg := c.Msg()
	if err = c.node.SendMsg(msg); err != nil {
		return resp, err
	}
	sent := 1

	timeout := time.NewTimer(CMD_TIMEOUT)
	defer timeout.Stop()

	for {
		select {
		case r := <-c.ack:
			if c.verify(r) {
				return r, nil
			}

		case <-c.abort:
			return resp, ERR_SEND_ABORT

		case <-timeout.C:
			if sent >= CMD_MAX_RETRIES {
				return resp, ERR_MAX_RETRIES
			}
			if err = c.node.SendMsg(msg); err != nil {
				return resp, err
			}
			sent++
			timeout.Reset(CMD_TIMEOUT)
		}
	}
}

func (c *BaseCommand) verify(msg canbus.CANMsg) bool {
	if msg.Cmd != c.msg.Cmd {
		return false
	}
	return !c.echo || bytes.Equal(c.msg.Data, msg.Data)
}

func (c *BaseCommand) ID() uint16 {
	return c.msg.Cmd
}

func (c *BaseCommand) Msg() canbus.CANMsg {
	return c.msg
}

func (c *BaseCommand) Abort() error {
	if c.abort == nil {
		return errors.New("send not yet attempted")
	}

	c.abortOnce.Do(func() { close(c.abort) })
	return nil
}

// Ack never blocks the node's listener; a second reply before the first is
// consumed is dropped.
func (c *BaseCommand) Ack(msg canbus.CANMsg) {
	select {
	case c.ack <- msg:
	default:
	}
}

func newCommand(n *ControlNode, cmd uint16, data []byte, echo bool) *BaseCommand {
	return &BaseCommand{
		node: n,
		msg: canbus.CANMsg{
			ID:   n.id,
			Cmd:  cmd,
			Data: data,
		},
		echo: echo,
	}
}

// outputPayload is [mode, float32 LE].
func outputPayload(value float64, mode ControlMode) []byte {
	data := make([]byte, 5)
	data[0] = byte(mode)
	binary.LittleEndian.PutUint32(data[1:], math.Float32bits(float32(value)))
	return data
}

func intervalPayload(d time.Duration) []byte {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, uint16(d/time.Millisecond))
	return data
}
