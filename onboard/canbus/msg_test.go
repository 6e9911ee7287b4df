package canbus

import (
	"encoding/binary"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCANMsg_toByteArray(t *testing.T) {
	Convey("Standard frame format encodes correctly", t, func() {
		msg := &CANMsg{
			ID:  0x123,
			Cmd: 0x4567,
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf, 0x1234)
		msg.Data = buf[:2]
		raw, err := msg.toByteArray()
		So(err, ShouldBeNil)

		Convey("ID gets set correctly", func() {
			So(raw[0:4], ShouldResemble, []byte{0x23, 0x01, 0x00, 0x00})
		})

		Convey("Data length counts the command", func() {
			So(raw[4], ShouldEqual, 4)
		})

		Convey("Cmd is correctly set", func() {
			So(raw[8:10], ShouldResemble, []byte{0x67, 0x45})
		})

		Convey("Data is copied over", func() {
			So(raw[10:], ShouldResemble, []byte{0x34, 0x12, 0x00, 0x00, 0x00, 0x00})
		})

		Convey("data length error is handled correctly", func() {
			msg.Data = buf[:6]
			_, err = msg.toByteArray()
			So(err, ShouldBeNil)

			msg.Data = buf[:7]
			_, err = msg.toByteArray()
			So(err, ShouldEqual, ERR_DATA_TOO_LONG)
		})
	})

	Convey("Extended ids set the EFF flag", t, func() {
		msg := &CANMsg{ID: 0x12345, Cmd: 0x0010}
		raw, err := msg.toByteArray()
		So(err, ShouldBeNil)
		So(binary.LittleEndian.Uint32(raw[0:4]), ShouldEqual, uint32(0x12345|CAN_EFF_FLAG))
	})
}

func TestCANMsg_msgFromByteArray(t *testing.T) {
	Convey("Frames decode to the message they were built from", t, func() {
		for _, in := range []CANMsg{
			{ID: 0x00A, Cmd: 0x0120, Data: []byte{1, 2, 3}},
			{ID: 0x1ABCDE, Cmd: 0x03E0, Data: []byte{}},
		} {
			raw, err := in.toByteArray()
			So(err, ShouldBeNil)
			out, err := msgFromByteArray(raw)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, in)
		}
	})

	Convey("Short, error and command-less frames are rejected", t, func() {
		_, err := msgFromByteArray(make([]byte, 4))
		So(err, ShouldEqual, ERR_FRAME_TOO_SHORT)

		raw := make([]byte, frameLength)
		binary.LittleEndian.PutUint32(raw[0:4], 0x10|CAN_ERR_FLAG)
		_, err = msgFromByteArray(raw)
		So(err, ShouldNotBeNil)

		raw = make([]byte, frameLength)
		raw[4] = 1
		_, err = msgFromByteArray(raw)
		So(err, ShouldNotBeNil)
	})
}

func TestCANMsg_Host(t *testing.T) {
	Convey("Host flag is detected and stripped", t, func() {
		msg := CANMsg{ID: 0x00A | CANHostFlag}
		So(msg.IsHost(), ShouldBeTrue)
		So(msg.NodeID(), ShouldEqual, 0x00A)
		So(CANMsg{ID: 0x00A}.IsHost(), ShouldBeFalse)
	})
}

func TestListeners(t *testing.T) {
	Convey("Frames are routed by id and never block", t, func() {
		var l listeners
		rx := make(chan CANMsg, 1)
		l.AddListener(0x00A, rx)

		l.route(CANMsg{ID: 0x00A, Cmd: 1})
		l.route(CANMsg{ID: 0x00A, Cmd: 2})
		l.route(CANMsg{ID: 0x00B, Cmd: 3})
		l.route(CANMsg{ID: 0x00A | CANHostFlag, Cmd: 4})

		So((<-rx).Cmd, ShouldEqual, 1)
		So(l.Dropped(), ShouldEqual, 1)
	})
}

func BenchmarkCANMsg_toByteArray(b *testing.B) {
	msg := &CANMsg{
		ID:   0x7ff,
		Data: make([]byte, 6),
	}
	binary.LittleEndian.PutUint32(msg.Data, 0x0001)

	for n := 0; n < b.N; n++ {
		msg.toByteArray()
	}
}

func BenchmarkCANMsg_msgFromByteArray(b *testing.B) {
	msg := &CANMsg{
		ID:   0x7ff,
		Data: make([]byte, 6),
	}
	binary.LittleEndian.PutUint32(msg.Data, 0x0001)
	raw, _ := msg.toByteArray()

	for n := 0; n < b.N; n++ {
		msgFromByteArray(raw)
	}
}
