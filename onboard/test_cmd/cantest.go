// cantest probes motor controller nodes on a bus: firmware version, then a
// second of streamed status.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/CodedInternet/goswerve/onboard/canbus"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/edaniels/golog"
	"github.com/jessevdk/go-flags"
)

type Options struct {
	Interface string        `short:"i" long:"iface" default:"can0" description:"SocketCAN interface"`
	Port      string        `short:"p" long:"port" description:"SLCAN serial port, overrides --iface"`
	Baud      int           `long:"baud" default:"115200"`
	Bitrate   int           `long:"bitrate" default:"1000000"`
	Watch     time.Duration `short:"w" long:"watch" default:"1s" description:"How long to watch status frames"`
	Args      struct {
		IDs []string `positional-arg-name:"id" required:"1"`
	} `positional-args:"yes"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	logger := golog.NewDevelopmentLogger("cantest")

	var bus canbus.CANBusInterface
	var err error
	if opts.Port != "" {
		bus, err = canbus.NewSLCANBus(opts.Port, opts.Baud, opts.Bitrate)
	} else {
		bus, err = canbus.NewCANBus(opts.Interface)
	}
	if err != nil {
		logger.Fatalw("unable to open bus", "error", err)
	}
	defer bus.Close()

	status := hardware.NewStatusCache(opts.Watch)
	var nodes []*hardware.ControlNode
	for _, arg := range opts.Args.IDs {
		id, err := strconv.ParseUint(arg, 0, 11)
		if err != nil {
			logger.Fatalw("bad node id", "id", arg, "error", err)
		}

		node := hardware.NewControlNode(bus, uint32(id), status, logger)
		defer node.Stop()
		if err := node.CheckVersion(hardware.NODE_VERSION, true); err != nil {
			fmt.Printf("node %d: %v\n", id, err)
			continue
		}
		fmt.Printf("node %d: version %s\n", id, node.Version())
		if err := node.SetUpdateInterval(10 * time.Millisecond); err != nil {
			fmt.Printf("node %d: %v\n", id, err)
		}
		nodes = append(nodes, node)
	}

	time.Sleep(opts.Watch)
	for _, node := range nodes {
		id := int(node.ID())
		fmt.Printf("node %d: position %v velocity %v current %v absolute %v\n", id,
			status.Read(node.ID(), hardware.SignalPosition),
			status.Read(node.ID(), hardware.SignalVelocity),
			status.Read(node.ID(), hardware.SignalCurrent),
			status.Read(node.ID(), hardware.SignalAbsolute))
	}
}
