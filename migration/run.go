package migration

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is the position of a Run in the orchestration sequence.
// Transitions are strictly forward: Idle, GuardChecked, Launched, Running, Stopped,
// then Succeeded or Failed.
type State int

const (
	StateIdle State = iota
	StateGuardChecked
	StateLaunched
	StateRunning
	StateStopped
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateGuardChecked:
		return "GuardChecked"
	case StateLaunched:
		return "Launched"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is the coarse view of a Run reported to callers.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Run is one attempt at executing the migration task.
type Run struct {
	ClusterId         string
	TaskFamily        string
	TaskDefinitionArn string
	SecurityGroupId   string
	SubnetId          string

	// TaskArn is set once the task has been started.
	TaskArn string
	State   State
}

func (r *Run) Outcome() Outcome {
	switch r.State {
	case StateIdle, StateGuardChecked:
		return OutcomePending
	case StateSucceeded:
		return OutcomeSucceeded
	case StateFailed:
		return OutcomeFailed
	}
	return OutcomeRunning
}

// LockKey is the advisory lock key shared by every run of the same family on a cluster.
func (r *Run) LockKey() string {
	return fmt.Sprintf("%s/%s", r.ClusterId, r.TaskFamily)
}

func (r *Run) validate() error {
	switch {
	case r.ClusterId == "":
		return errors.New("migration run requires a cluster id")
	case r.TaskFamily == "":
		return errors.New("migration run requires a task family")
	case r.TaskDefinitionArn == "":
		return errors.New("migration run requires a task definition arn")
	case r.SecurityGroupId == "":
		return errors.New("migration run requires a security group id")
	case r.SubnetId == "":
		return errors.New("migration run requires a subnet id")
	}
	return nil
}
