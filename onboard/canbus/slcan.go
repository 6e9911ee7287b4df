package canbus

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// SLCAN bitrate commands, S0 (10k) through S8 (1M).
var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// SLCANBus talks to a serial-line CAN adapter (CANable, USBtin and friends).
type SLCANBus struct {
	listeners

	port      io.ReadWriteCloser
	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewSLCANBus opens the adapter on a serial port and starts the channel at bitrate.
func NewSLCANBus(portName string, baud, bitrate int) (*SLCANBus, error) {
	setup, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, errors.Errorf("unsupported CAN bitrate %d", bitrate)
	}

	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", portName)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "set read timeout")
	}

	bus := newSLCANBus(port)
	// close any half open channel left by a previous run before configuring
	for _, cmd := range []string{"C", setup, "O"} {
		if err := bus.writeLine(cmd); err != nil {
			bus.Close()
			return nil, errors.Wrapf(err, "slcan %s", cmd)
		}
	}

	return bus, nil
}

func newSLCANBus(port io.ReadWriteCloser) *SLCANBus {
	bus := &SLCANBus{
		port: port,
		done: make(chan struct{}),
	}
	go bus.reader()
	return bus
}

func (s *SLCANBus) SendMsg(msg CANMsg) error {
	select {
	case <-s.done:
		return ERR_BUS_CLOSED
	default:
	}

	line, err := encodeSLCAN(msg)
	if err != nil {
		return err
	}
	return s.writeLine(line)
}

func (s *SLCANBus) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeLine("C")
		close(s.done)
		err = s.port.Close()
	})
	return err
}

func (s *SLCANBus) writeLine(line string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := io.WriteString(s.port, line+"\r")
	return err
}

func (s *SLCANBus) reader() {
	r := bufio.NewReader(s.port)
	var pending string
	for {
		chunk, err := r.ReadString('\r')
		pending += chunk
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			// read timeouts leave a partial line behind
			if err == io.EOF || err == io.ErrNoProgress {
				continue
			}
			return
		}

		if msg, ok := decodeSLCAN(pending); ok {
			s.route(msg)
		}
		pending = ""
	}
}

// encodeSLCAN formats tIIILDD.. for standard ids and TIIIIIIIILDD.. for extended ids.
func encodeSLCAN(msg CANMsg) (string, error) {
	payload, err := msg.payload()
	if err != nil {
		return "", err
	}

	var head string
	if msg.ID != msg.ID&CAN_SFF_MASK {
		head = fmt.Sprintf("T%08X", msg.ID&CAN_EFF_MASK)
	} else {
		head = fmt.Sprintf("t%03X", msg.ID)
	}

	return fmt.Sprintf("%s%d%X", head, len(payload), payload), nil
}

func decodeSLCAN(line string) (CANMsg, bool) {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return CANMsg{}, false
	}

	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
	default:
		// acks, errors and remote frames
		return CANMsg{}, false
	}

	if len(line) < 1+idLen+1 {
		return CANMsg{}, false
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return CANMsg{}, false
	}
	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > 8 {
		return CANMsg{}, false
	}

	hexData := line[2+idLen:]
	// trailing timestamps are allowed
	if len(hexData) < dlc*2 {
		return CANMsg{}, false
	}
	payload, err := hex.DecodeString(hexData[:dlc*2])
	if err != nil {
		return CANMsg{}, false
	}

	return msgFromPayload(uint32(id), payload)
}
