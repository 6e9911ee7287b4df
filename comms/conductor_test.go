package comms

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CodedInternet/goswerve/onboard/claw"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/telemetry"
	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDevice struct {
	mu      sync.Mutex
	drives  []Cmd
	poses   []claw.Pose
	stopped int
}

func (d *mockDevice) DriveChassis(vx, vy, omega float64, mode hardware.ControlMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drives = append(d.drives, Cmd{Vx: vx, Vy: vy, Omega: omega, Mode: mode.String()})
	return nil
}

func (d *mockDevice) RequestPose(pose claw.Pose) error {
	if pose == claw.Transition {
		return errors.New("refused")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.poses = append(d.poses, pose)
	return nil
}

func (d *mockDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
}

func TestConductor_ProcessCommand(t *testing.T) {
	device := new(mockDevice)
	c := NewConductor(device, 0, golog.NewTestLogger(t))

	Convey("drive commands carry their mode", t, func() {
		So(c.ProcessCommand(Cmd{Cmd: "drive", Vx: 1, Omega: 0.5, Mode: "closed"}), ShouldBeNil)
		So(device.drives[len(device.drives)-1], ShouldResemble, Cmd{Vx: 1, Omega: 0.5, Mode: "closed_loop"})

		So(c.ProcessCommand(Cmd{Cmd: "drive", Mode: "sideways"}), ShouldNotBeNil)
	})

	Convey("pose commands are parsed by name", t, func() {
		So(c.ProcessCommand(Cmd{Cmd: "pose", Name: "mid_score"}), ShouldBeNil)
		So(device.poses, ShouldResemble, []claw.Pose{claw.MidScore})

		So(c.ProcessCommand(Cmd{Cmd: "pose", Name: "TRANSITION"}), ShouldNotBeNil)
		So(c.ProcessCommand(Cmd{Cmd: "pose", Name: "nowhere"}), ShouldNotBeNil)
	})

	Convey("stop and unknown commands", t, func() {
		So(c.ProcessCommand(Cmd{Cmd: "stop"}), ShouldBeNil)
		So(device.stopped, ShouldEqual, 1)
		So(c.ProcessCommand(Cmd{Cmd: "dance"}), ShouldNotBeNil)
	})
}

func TestConductor_Serve(t *testing.T) {
	device := new(mockDevice)
	c := NewConductor(device, 50*time.Millisecond, golog.NewTestLogger(t))

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Serve(conn)
	}))
	defer srv.Close()

	read := func(conn *websocket.Conn) Envelope {
		var env Envelope
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		So(err, ShouldBeNil)
		So(json.Unmarshal(msg, &env), ShouldBeNil)
		return env
	}

	Convey("a connected client", t, func() {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		for i := 0; i < 1000 && c.Clients() != 1; i++ {
			time.Sleep(time.Millisecond)
		}
		So(c.Clients(), ShouldEqual, 1)

		Convey("gets a reply for every command", func() {
			So(conn.WriteJSON(Cmd{Cmd: "pose", Name: "HIGH_SCORE"}), ShouldBeNil)
			env := read(conn)
			So(env.Type, ShouldEqual, envelopeReply)
			So(env.Data.(map[string]interface{})["ok"], ShouldEqual, true)

			So(conn.WriteMessage(websocket.TextMessage, []byte("{")), ShouldBeNil)
			env = read(conn)
			So(env.Data.(map[string]interface{})["error"], ShouldEqual, "invalid json")
		})

		Convey("receives snapshots no faster than the interval", func() {
			now := time.Now()
			c.Publish(telemetry.Snapshot{Tick: 1, Time: now})
			c.Publish(telemetry.Snapshot{Tick: 2, Time: now.Add(20 * time.Millisecond)})
			c.Publish(telemetry.Snapshot{Tick: 3, Time: now.Add(60 * time.Millisecond)})

			env := read(conn)
			So(env.Type, ShouldEqual, envelopeState)
			So(env.Data.(map[string]interface{})["tick"], ShouldEqual, float64(1))

			env = read(conn)
			So(env.Data.(map[string]interface{})["tick"], ShouldEqual, float64(3))
		})
	})
}
