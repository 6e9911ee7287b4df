//go:build !linux
// +build !linux

package canbus

import "github.com/pkg/errors"

// CANBus is only available where SocketCAN exists. Use an SLCAN adapter elsewhere.
type CANBus struct {
	listeners
}

func NewCANBus(ifname string) (*CANBus, error) {
	return nil, errors.Errorf("socketcan interface %s: not supported on this platform", ifname)
}

func (c *CANBus) SendMsg(msg CANMsg) error {
	return ERR_BUS_CLOSED
}

func (c *CANBus) Close() error {
	return nil
}
