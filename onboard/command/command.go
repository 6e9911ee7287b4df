// Package command runs one long-lived Command at a time on the control tick.
package command

import (
	"fmt"

	"github.com/edaniels/golog"
)

// Command is a unit of work the scheduler drives across ticks.
type Command interface {
	// Initialize runs once when scheduled. An error means the command never starts.
	Initialize() error
	Execute()
	End(interrupted bool)
	IsFinished() bool
}

// Scheduler holds at most one active command. Scheduling a new command
// interrupts the running one; there is no queue.
type Scheduler struct {
	logger golog.Logger
	active Command
}

func NewScheduler(logger golog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Schedule initializes cmd synchronously. If that fails the running command
// is left alone and the error returned.
func (s *Scheduler) Schedule(cmd Command) error {
	if err := cmd.Initialize(); err != nil {
		s.logger.Debugw("command refused", "command", name(cmd), "error", err)
		return err
	}

	if s.active != nil {
		s.logger.Debugw("command interrupted", "command", name(s.active), "by", name(cmd))
		s.active.End(true)
	}
	s.active = cmd
	return nil
}

// Run executes the active command once and retires it when finished.
func (s *Scheduler) Run() {
	if s.active == nil {
		return
	}

	s.active.Execute()
	if s.active.IsFinished() {
		s.logger.Debugw("command finished", "command", name(s.active))
		s.active.End(false)
		s.active = nil
	}
}

// Cancel interrupts the active command, if any.
func (s *Scheduler) Cancel() {
	if s.active == nil {
		return
	}
	s.active.End(true)
	s.active = nil
}

func (s *Scheduler) Active() Command {
	return s.active
}

func name(cmd Command) string {
	if str, ok := cmd.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T", cmd)
}
