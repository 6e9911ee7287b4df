package command

import (
	"errors"
	"testing"

	"github.com/edaniels/golog"
	. "github.com/smartystreets/goconvey/convey"
)

type testCommand struct {
	initErr     error
	initialized int
	executed    int
	finishAfter int
	ended       []bool
}

func (c *testCommand) Initialize() error {
	c.initialized++
	return c.initErr
}

func (c *testCommand) Execute() {
	c.executed++
}

func (c *testCommand) End(interrupted bool) {
	c.ended = append(c.ended, interrupted)
}

func (c *testCommand) IsFinished() bool {
	return c.executed >= c.finishAfter
}

func TestScheduler(t *testing.T) {
	Convey("a scheduler", t, func() {
		s := NewScheduler(golog.NewTestLogger(t))

		Convey("runs a command until it finishes", func() {
			cmd := &testCommand{finishAfter: 3}
			So(s.Schedule(cmd), ShouldBeNil)
			So(cmd.initialized, ShouldEqual, 1)

			s.Run()
			s.Run()
			So(s.Active(), ShouldEqual, cmd)
			s.Run()
			So(s.Active(), ShouldBeNil)
			So(cmd.ended, ShouldResemble, []bool{false})

			s.Run()
			So(cmd.executed, ShouldEqual, 3)
		})

		Convey("interrupts the running command", func() {
			first := &testCommand{finishAfter: 10}
			second := &testCommand{finishAfter: 10}
			So(s.Schedule(first), ShouldBeNil)
			s.Run()
			So(s.Schedule(second), ShouldBeNil)

			So(first.ended, ShouldResemble, []bool{true})
			So(s.Active(), ShouldEqual, second)
		})

		Convey("keeps the running command when a new one fails to initialize", func() {
			first := &testCommand{finishAfter: 10}
			So(s.Schedule(first), ShouldBeNil)

			bad := &testCommand{initErr: errors.New("nope")}
			So(s.Schedule(bad), ShouldNotBeNil)
			So(s.Active(), ShouldEqual, first)
			So(first.ended, ShouldBeEmpty)
			So(bad.ended, ShouldBeEmpty)
		})

		Convey("cancel interrupts", func() {
			cmd := &testCommand{finishAfter: 10}
			So(s.Schedule(cmd), ShouldBeNil)
			s.Cancel()
			So(cmd.ended, ShouldResemble, []bool{true})
			So(s.Active(), ShouldBeNil)
			s.Cancel()
		})
	})
}
