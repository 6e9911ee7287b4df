// Package comms connects operator clients to the robot over websockets.
package comms

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/CodedInternet/goswerve/onboard/claw"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/telemetry"
	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	clientQueueLength = 8
	writeWait         = time.Second
)

// Device is the part of the robot operators may drive.
type Device interface {
	DriveChassis(vx, vy, omega float64, mode hardware.ControlMode) error
	RequestPose(pose claw.Pose) error
	Stop()
}

type ConductorInterface interface {
	ProcessCommand(cmd Cmd) error
}

// Conductor routes client commands to the device and streams snapshots back.
type Conductor struct {
	Device   Device
	interval time.Duration
	logger   golog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	last    time.Time
}

func NewConductor(device Device, interval time.Duration, logger golog.Logger) *Conductor {
	return &Conductor{
		Device:   device,
		interval: interval,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
	}
}

func (c *Conductor) ProcessCommand(cmd Cmd) error {
	switch cmd.Cmd {
	case "drive":
		mode, err := hardware.ParseControlMode(cmd.Mode)
		if err != nil {
			return err
		}
		return c.Device.DriveChassis(cmd.Vx, cmd.Vy, cmd.Omega, mode)

	case "pose":
		pose, err := claw.ParsePose(cmd.Name)
		if err != nil {
			return err
		}
		return c.Device.RequestPose(pose)

	case "stop":
		c.Device.Stop()
		return nil
	}

	return errors.Errorf("unable to process command %q", cmd.Cmd)
}

// Publish sends s to every client, at most once per interval. Slow clients
// miss snapshots rather than holding up the loop.
func (c *Conductor) Publish(s telemetry.Snapshot) {
	c.mu.Lock()
	if len(c.clients) == 0 || s.Time.Sub(c.last) < c.interval {
		c.mu.Unlock()
		return
	}
	c.last = s.Time
	clients := make([]*Client, 0, len(c.clients))
	for client := range c.clients {
		clients = append(clients, client)
	}
	c.mu.Unlock()

	msg, err := encode(envelopeState, s)
	if err != nil {
		c.logger.Errorw("unable to encode snapshot", "error", err)
		return
	}
	for _, client := range clients {
		client.send(msg)
	}
}

// Serve runs a client connection until it closes.
func (c *Conductor) Serve(conn *websocket.Conn) {
	client := newClient(conn, c)

	c.mu.Lock()
	c.clients[client] = struct{}{}
	c.mu.Unlock()
	c.logger.Infow("client connected", "remote", conn.RemoteAddr().String())

	client.run()

	c.mu.Lock()
	delete(c.clients, client)
	c.mu.Unlock()
	c.logger.Infow("client disconnected", "remote", conn.RemoteAddr().String())
}

func (c *Conductor) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Client is one websocket connection.
type Client struct {
	conn      *websocket.Conn
	conductor ConductorInterface
	tx        chan []byte
	done      chan struct{}
}

func newClient(conn *websocket.Conn, conductor ConductorInterface) *Client {
	return &Client{
		conn:      conn,
		conductor: conductor,
		tx:        make(chan []byte, clientQueueLength),
		done:      make(chan struct{}),
	}
}

func (client *Client) send(msg []byte) {
	select {
	case client.tx <- msg:
	default:
	}
}

func (client *Client) run() {
	go client.writer()
	defer close(client.done)
	defer client.conn.Close()

	for {
		_, msg, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		client.receiveMessage(msg)
	}
}

func (client *Client) receiveMessage(msg []byte) {
	var cmd Cmd
	reply := Reply{OK: true}
	if err := json.Unmarshal(msg, &cmd); err != nil {
		reply.OK, reply.Error = false, "invalid json"
	} else {
		reply.Cmd = cmd.Cmd
		if err := client.conductor.ProcessCommand(cmd); err != nil {
			reply.OK, reply.Error = false, err.Error()
		}
	}

	out, err := encode(envelopeReply, reply)
	if err != nil {
		return
	}
	client.send(out)
}

func (client *Client) writer() {
	for {
		select {
		case <-client.done:
			return
		case msg := <-client.tx:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.conn.Close()
				return
			}
		}
	}
}
