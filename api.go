package main

import (
	"net/http"
	"strconv"

	"github.com/CodedInternet/goswerve/onboard"
	"github.com/CodedInternet/goswerve/onboard/claw"
	deverrors "github.com/CodedInternet/goswerve/onboard/errors"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/telemetry"
	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

const defaultFaultLimit = 50

type api struct {
	robot   onboard.Device
	journal *telemetry.Journal
}

func (a *api) Routes(r chi.Router) {
	r.Post("/drive", a.Drive)
	r.Post("/pose", a.Pose)
	r.Post("/stop", a.Stop)
	r.Get("/state", a.State)
	r.Get("/faults", a.Faults)
}

type DrivePayload struct {
	Vx    float64 `json:"vx"`
	Vy    float64 `json:"vy"`
	Omega float64 `json:"omega"`
	Mode  string  `json:"mode"`

	mode hardware.ControlMode
}

func (d *DrivePayload) Bind(r *http.Request) (err error) {
	d.mode, err = hardware.ParseControlMode(d.Mode)
	return err
}

type PosePayload struct {
	Pose *claw.Pose `json:"pose"`
}

func (p *PosePayload) Bind(r *http.Request) error {
	if p.Pose == nil {
		return errors.New("pose is required")
	}
	return nil
}

// rejected renders errors the robot raised for a well formed request.
func rejected(w http.ResponseWriter, r *http.Request, err error) {
	switch errors.Cause(err).(type) {
	case deverrors.InvalidCommandError, deverrors.InvalidPoseRequestError:
		render.Render(w, r, ErrRejected(err))
	default:
		render.Render(w, r, ErrInvalidRequest(err))
	}
}

func (a *api) Drive(w http.ResponseWriter, r *http.Request) {
	data := &DrivePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := a.robot.DriveChassis(data.Vx, data.Vy, data.Omega, data.mode); err != nil {
		rejected(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (a *api) Pose(w http.ResponseWriter, r *http.Request) {
	data := &PosePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := a.robot.RequestPose(*data.Pose); err != nil {
		rejected(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{"pose": data.Pose})
}

func (a *api) Stop(w http.ResponseWriter, r *http.Request) {
	a.robot.Stop()
	render.NoContent(w, r)
}

func (a *api) State(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, a.robot.Snapshot())
}

func (a *api) Faults(w http.ResponseWriter, r *http.Request) {
	limit := defaultFaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			render.Render(w, r, ErrInvalidRequest(errors.Errorf("bad limit %q", s)))
			return
		}
		limit = n
	}

	faults, err := a.journal.Recent(limit)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
	if faults == nil {
		faults = []telemetry.Fault{}
	}
	render.JSON(w, r, faults)
}
