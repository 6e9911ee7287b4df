package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorMessages(t *testing.T) {
	Convey("messages carry their context", t, func() {
		So(InvalidPoseRequestError{}.Error(), ShouldEqual, "invalid pose request UNKNOWN")
		So(InvalidPoseRequestError{Pose: "TRANSITION", Reason: "waypoint only"}.Error(),
			ShouldEqual, "invalid pose request TRANSITION: waypoint only")
		So(SensorStaleError{SensorID: 10}.Error(), ShouldContainSubstring, "UNKNOWN")
		So(ConfigError{Field: "angle_offset", Value: 400.0, Reason: "outside [0, 360)"}.Error(),
			ShouldEqual, "bad config angle_offset=400: outside [0, 360)")
	})

	Convey("typed errors survive wrapping", t, func() {
		err := pkgerrors.Wrap(InvalidCommandError{Vx: 1}, "drive")
		_, ok := pkgerrors.Cause(err).(InvalidCommandError)
		So(ok, ShouldBeTrue)
	})
}
