package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/CodedInternet/goswerve/onboard"
	"github.com/CodedInternet/goswerve/onboard/claw"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/telemetry"
	"github.com/abiosoft/ishell"
	"github.com/asdine/storm/v3"
	"github.com/pkg/errors"
)

func poseNames([]string) []string {
	names := make([]string, 0, len(claw.Poses()))
	for _, p := range claw.Poses() {
		if p.Requestable() {
			names = append(names, p.String())
		}
	}
	return names
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		out[i] = v
	}
	return out, nil
}

func newShell(robot onboard.Device, journal *telemetry.Journal, db *storm.DB) *ishell.Shell {
	shell := ishell.New()
	shell.Println("goswerve development shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "createoperator",
		Help: "createoperator <name> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)

			var name string
			if len(c.Args) >= 1 {
				name = c.Args[0]
			} else {
				c.Print("Name: ")
				name = c.ReadLine()
			}

			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			if err := createOperator(db, name, password, true); err != nil {
				c.Err(err)
				return
			}
			c.Println("Operator created")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "drive",
		Help: "drive <vx> <vy> <omega> [open|closed]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(errors.New("usage: drive <vx> <vy> <omega> [open|closed]"))
				return
			}
			v, err := parseFloats(c.Args[:3])
			if err != nil {
				c.Err(err)
				return
			}
			mode := hardware.OpenLoop
			if len(c.Args) > 3 {
				if mode, err = hardware.ParseControlMode(c.Args[3]); err != nil {
					c.Err(err)
					return
				}
			}
			if err := robot.DriveChassis(v[0], v[1], v[2], mode); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "pose",
		Completer: poseNames,
		Help:      "pose <name>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.Errorf("usage: pose <%s>", strings.Join(poseNames(nil), "|")))
				return
			}
			pose, err := claw.ParsePose(c.Args[0])
			if err == nil {
				err = robot.RequestPose(pose)
			}
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("Moving to %s\n", pose)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop the chassis",
		Func: func(c *ishell.Context) {
			robot.Stop()
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "print the last snapshot",
		Func: func(c *ishell.Context) {
			raw, err := json.MarshalIndent(robot.Snapshot(), "", "  ")
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(string(raw))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "faults",
		Help: "faults [n]",
		Func: func(c *ishell.Context) {
			n := 10
			if len(c.Args) > 0 {
				var err error
				if n, err = strconv.Atoi(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			faults, err := journal.Recent(n)
			if err != nil {
				c.Err(err)
				return
			}
			for _, f := range faults {
				state := "cleared"
				if f.Active {
					state = "RAISED"
				}
				c.Printf("%s  tick %-8d %-8s %-12s %s\n", f.Time.Format("15:04:05.000"), f.Tick, state, f.Source, f.Kind)
			}
		},
	})

	return shell
}
