package canbus

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// CANHostFlag marks frames that originate from the host rather than a node.
	CANHostFlag = 0x0400

	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x000007ff
	CAN_EFF_MASK = 0x1fffffff

	frameLength   = 16 // struct can_frame
	maxDataLength = 6  // 8 byte payload less the 2 byte command
)

// errors
var (
	ERR_DATA_TOO_LONG   = errors.New("data length exceeds 6 bytes")
	ERR_FRAME_TOO_SHORT = errors.New("raw frame shorter than 16 bytes")
	ERR_BUS_CLOSED      = errors.New("bus is closed")
	ERR_TX_QUEUE_FULL   = errors.New("transmit queue is full")
)

type CANMsg struct {
	ID   uint32 // node ID this is being issued for
	Cmd  uint16 // command being issued in this message
	Data []byte // raw data up to six bytes. DLC is taken from len(Data) + 2.
}

// IsHost reports whether the frame was sent by a host.
func (msg CANMsg) IsHost() bool {
	return msg.ID&CANHostFlag != 0
}

// NodeID strips the host flag.
func (msg CANMsg) NodeID() uint32 {
	return msg.ID &^ CANHostFlag
}

// payload is the command followed by the data, as carried on the wire.
func (msg CANMsg) payload() ([]byte, error) {
	if len(msg.Data) > maxDataLength {
		return nil, ERR_DATA_TOO_LONG
	}
	buf := make([]byte, 2+len(msg.Data))
	binary.LittleEndian.PutUint16(buf[0:2], msg.Cmd)
	copy(buf[2:], msg.Data)
	return buf, nil
}

func msgFromPayload(id uint32, payload []byte) (CANMsg, bool) {
	if len(payload) < 2 {
		return CANMsg{}, false
	}
	data := make([]byte, len(payload)-2)
	copy(data, payload[2:])
	return CANMsg{
		ID:   id,
		Cmd:  binary.LittleEndian.Uint16(payload[0:2]),
		Data: data,
	}, true
}

// toByteArray produces a SocketCAN struct can_frame.
func (msg *CANMsg) toByteArray() (raw []byte, err error) {
	payload, err := msg.payload()
	if err != nil {
		return nil, err
	}

	raw = make([]byte, frameLength)

	oid := msg.ID
	if oid != oid&CAN_SFF_MASK {
		oid = (oid & CAN_EFF_MASK) | CAN_EFF_FLAG
	}
	binary.LittleEndian.PutUint32(raw[0:4], oid)

	raw[4] = byte(len(payload))
	copy(raw[8:], payload)

	return raw, nil
}

// msgFromByteArray decodes a struct can_frame. Error and remote frames are rejected.
func msgFromByteArray(raw []byte) (msg CANMsg, err error) {
	if len(raw) < frameLength {
		return msg, ERR_FRAME_TOO_SHORT
	}

	oid := binary.LittleEndian.Uint32(raw[0:4])
	if oid&(CAN_ERR_FLAG|CAN_RTR_FLAG) != 0 {
		return msg, errors.Errorf("unsupported frame flags 0x%08x", oid)
	}

	var id uint32
	if oid&CAN_EFF_FLAG != 0 {
		id = oid & CAN_EFF_MASK
	} else {
		id = oid & CAN_SFF_MASK
	}

	dlc := int(raw[4])
	if dlc > 8 {
		return msg, errors.Errorf("bad dlc %d", dlc)
	}

	msg, ok := msgFromPayload(id, raw[8:8+dlc])
	if !ok {
		return msg, errors.Errorf("frame 0x%03x carries no command", id)
	}
	return msg, nil
}
