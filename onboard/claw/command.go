package claw

// PoseCommand requests a pose and finishes once the wrist has settled.
type PoseCommand struct {
	claw *PoseController
	pose Pose
}

func NewPoseCommand(claw *PoseController, pose Pose) *PoseCommand {
	return &PoseCommand{claw: claw, pose: pose}
}

func (c *PoseCommand) Initialize() error {
	return c.claw.Request(c.pose)
}

func (c *PoseCommand) Execute() {}

// End does nothing; an interrupted move stops wherever the next request finds it.
func (c *PoseCommand) End(interrupted bool) {}

func (c *PoseCommand) IsFinished() bool {
	return c.claw.IsAtTarget()
}

func (c *PoseCommand) String() string {
	return "pose " + c.pose.String()
}
