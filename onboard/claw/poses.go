package claw

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	"github.com/pkg/errors"
)

// Pose is a named claw position. The values are array indices into PoseTable.
type Pose int

const (
	Loading Pose = iota
	Transport
	LowScore
	MidScore
	HighScore
	// Transition only has an arm target and cannot be requested.
	Transition
	Grabbing

	numPoses
)

var poseNames = [numPoses]string{
	"LOADING",
	"TRANSPORT",
	"LOW_SCORE",
	"MID_SCORE",
	"HIGH_SCORE",
	"TRANSITION",
	"GRABBING",
}

func (p Pose) String() string {
	if !p.valid() {
		return fmt.Sprintf("POSE(%d)", int(p))
	}
	return poseNames[p]
}

func (p Pose) valid() bool {
	return p >= 0 && p < numPoses
}

// Requestable reports whether the pose may be asked for directly.
func (p Pose) Requestable() bool {
	return p.valid() && p != Transition
}

// Poses lists every pose in ordinal order.
func Poses() []Pose {
	out := make([]Pose, numPoses)
	for i := range out {
		out[i] = Pose(i)
	}
	return out
}

// ParsePose accepts names like "LOW_SCORE", "low-score" or "lowscore".
func ParsePose(name string) (Pose, error) {
	want := normalise(name)
	for i, n := range poseNames {
		if normalise(n) == want {
			return Pose(i), nil
		}
	}
	return 0, deverrors.InvalidPoseRequestError{Pose: name, Reason: "unknown pose"}
}

func normalise(name string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToUpper(name))
}

func (p Pose) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, errors.Errorf("invalid pose %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Pose) UnmarshalText(text []byte) error {
	pose, err := ParsePose(string(text))
	if err != nil {
		return err
	}
	*p = pose
	return nil
}

// Setpoint is a (wrist, arm) target in joint ticks. A NaN wrist means the
// pose has no wrist target.
type Setpoint struct {
	Wrist float64
	Arm   float64
}

func (s Setpoint) HasWrist() bool {
	return !math.IsNaN(s.Wrist)
}

func (s Setpoint) MarshalJSON() ([]byte, error) {
	out := struct {
		Wrist *float64 `json:"wrist"`
		Arm   float64  `json:"arm"`
	}{Arm: s.Arm}
	if s.HasWrist() {
		out.Wrist = &s.Wrist
	}
	return json.Marshal(out)
}

// PoseTable maps every pose to its setpoint, indexed by ordinal.
type PoseTable [numPoses]Setpoint

func DefaultPoseTable() PoseTable {
	return PoseTable{
		Loading:    {Wrist: 335, Arm: 0},
		Transport:  {Wrist: 76, Arm: 0},
		LowScore:   {Wrist: 151, Arm: 11},
		MidScore:   {Wrist: 170, Arm: 75},
		HighScore:  {Wrist: 203, Arm: 100},
		Transition: {Wrist: math.NaN(), Arm: 50},
		Grabbing:   {Wrist: 345, Arm: 0},
	}
}

func (t *PoseTable) Lookup(p Pose) (Setpoint, bool) {
	if !p.valid() {
		return Setpoint{Wrist: math.NaN(), Arm: math.NaN()}, false
	}
	return t[p], true
}

func (t *PoseTable) Validate() error {
	for _, p := range Poses() {
		sp := t[p]
		if math.IsNaN(sp.Arm) || math.IsInf(sp.Arm, 0) {
			return deverrors.ConfigError{Field: "poses." + p.String() + ".arm", Value: sp.Arm, Reason: "must be finite"}
		}
		if p == Transition {
			continue
		}
		if !sp.HasWrist() || math.IsInf(sp.Wrist, 0) {
			return deverrors.ConfigError{Field: "poses." + p.String() + ".wrist", Value: sp.Wrist, Reason: "must be finite"}
		}
	}
	return nil
}

// UnmarshalYAML reads `NAME: [wrist, arm]` entries over the current table.
// The TRANSITION wrist is always unset whatever the file says.
func (t *PoseTable) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var entries map[string][]*float64
	if err := unmarshal(&entries); err != nil {
		return err
	}

	for name, values := range entries {
		p, err := ParsePose(name)
		if err != nil {
			return deverrors.ConfigError{Field: "poses", Value: name, Reason: "unknown pose"}
		}
		if len(values) != 2 {
			return deverrors.ConfigError{Field: "poses." + p.String(), Value: values, Reason: "want [wrist, arm]"}
		}
		if values[1] == nil {
			return deverrors.ConfigError{Field: "poses." + p.String(), Value: values, Reason: "missing arm target"}
		}

		sp := Setpoint{Wrist: math.NaN(), Arm: *values[1]}
		if values[0] != nil && p != Transition {
			sp.Wrist = *values[0]
		}
		t[p] = sp
	}
	return nil
}

func (t PoseTable) MarshalYAML() (interface{}, error) {
	out := make(map[string][]interface{}, numPoses)
	for _, p := range Poses() {
		var wrist interface{}
		if t[p].HasWrist() {
			wrist = t[p].Wrist
		}
		out[p.String()] = []interface{}{wrist, t[p].Arm}
	}
	return out, nil
}
