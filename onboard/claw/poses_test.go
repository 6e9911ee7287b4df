package claw

import (
	"encoding/json"
	"math"
	"testing"

	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v2"
)

func TestPose(t *testing.T) {
	Convey("names round trip", t, func() {
		for _, p := range Poses() {
			parsed, err := ParsePose(p.String())
			So(err, ShouldBeNil)
			So(parsed, ShouldEqual, p)
		}
	})

	Convey("parsing is forgiving about case and separators", t, func() {
		for _, name := range []string{"low_score", "Low-Score", "LOWSCORE", "low score"} {
			p, err := ParsePose(name)
			So(err, ShouldBeNil)
			So(p, ShouldEqual, LowScore)
		}

		_, err := ParsePose("DANCING")
		So(err, ShouldNotBeNil)
	})

	Convey("only TRANSITION and unknown poses cannot be requested", t, func() {
		So(Transition.Requestable(), ShouldBeFalse)
		So(Pose(-1).Requestable(), ShouldBeFalse)
		So(Grabbing.Requestable(), ShouldBeTrue)
	})

	Convey("poses are text in JSON", t, func() {
		raw, err := json.Marshal(struct{ Pose Pose }{MidScore})
		So(err, ShouldBeNil)
		So(string(raw), ShouldEqual, `{"Pose":"MID_SCORE"}`)

		var in struct{ Pose Pose }
		So(json.Unmarshal([]byte(`{"Pose":"high_score"}`), &in), ShouldBeNil)
		So(in.Pose, ShouldEqual, HighScore)
	})
}

func TestPoseTable(t *testing.T) {
	table := DefaultPoseTable()

	Convey("lookups are by ordinal", t, func() {
		sp, ok := table.Lookup(HighScore)
		So(ok, ShouldBeTrue)
		So(sp, ShouldResemble, Setpoint{Wrist: 203, Arm: 100})

		sp, ok = table.Lookup(Grabbing)
		So(ok, ShouldBeTrue)
		So(sp, ShouldResemble, Setpoint{Wrist: 345, Arm: 0})

		_, ok = table.Lookup(numPoses)
		So(ok, ShouldBeFalse)
	})

	Convey("TRANSITION has an arm target but no wrist", t, func() {
		sp, ok := table.Lookup(Transition)
		So(ok, ShouldBeTrue)
		So(sp.HasWrist(), ShouldBeFalse)
		So(sp.Arm, ShouldEqual, 50)

		raw, err := json.Marshal(sp)
		So(err, ShouldBeNil)
		So(string(raw), ShouldEqual, `{"wrist":null,"arm":50}`)
	})

	Convey("the default table validates", t, func() {
		So(table.Validate(), ShouldBeNil)
	})

	Convey("YAML entries override the defaults", t, func() {
		in := DefaultPoseTable()
		err := yaml.Unmarshal([]byte("LOADING: [330, 2]\ntransition: [12, 45]\n"), &in)
		So(err, ShouldBeNil)

		So(in[Loading], ShouldResemble, Setpoint{Wrist: 330, Arm: 2})
		So(math.IsNaN(in[Transition].Wrist), ShouldBeTrue)
		So(in[Transition].Arm, ShouldEqual, 45)
		So(in[Transport], ShouldResemble, table[Transport])

		Convey("and survive a round trip", func() {
			raw, err := yaml.Marshal(in)
			So(err, ShouldBeNil)

			out := PoseTable{}
			So(yaml.Unmarshal(raw, &out), ShouldBeNil)
			So(out[Loading], ShouldResemble, in[Loading])
			So(out[Transition].HasWrist(), ShouldBeFalse)
		})
	})

	Convey("bad YAML entries are rejected", t, func() {
		for _, doc := range []string{"LOADING: [1]\n", "LOADING: [1, ~]\n", "SPINNING: [1, 2]\n"} {
			in := DefaultPoseTable()
			So(yaml.Unmarshal([]byte(doc), &in), ShouldHaveSameTypeAs, deverrors.ConfigError{})
		}
	})
}
