//go:build linux
// +build linux

package canbus

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// CANBus is a raw SocketCAN interface such as can0.
type CANBus struct {
	listeners

	fd        int
	tx        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewCANBus(ifname string) (bus *CANBus, err error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errors.Wrapf(err, "find interface %s", ifname)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "open CAN socket")
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err = unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "bind %s", ifname)
	}

	bus = &CANBus{
		fd:   fd,
		tx:   make(chan []byte, txQueueLength),
		done: make(chan struct{}),
	}

	go bus.reader()
	go bus.writer()

	return bus, nil
}

// SendMsg queues a frame for transmission without waiting for the socket.
func (c *CANBus) SendMsg(msg CANMsg) error {
	raw, err := msg.toByteArray()
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ERR_BUS_CLOSED
	default:
	}

	select {
	case c.tx <- raw:
		return nil
	default:
		return ERR_TX_QUEUE_FULL
	}
}

func (c *CANBus) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = unix.Close(c.fd)
	})
	return err
}

func (c *CANBus) writer() {
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.tx:
			unix.Write(c.fd, raw)
		}
	}
}

func (c *CANBus) reader() {
	raw := make([]byte, frameLength)
	for {
		n, err := unix.Read(c.fd, raw)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return
		}
		if n < frameLength {
			continue
		}

		msg, err := msgFromByteArray(raw)
		if err != nil {
			continue
		}
		c.route(msg)
	}
}
