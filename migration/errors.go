package migration

import (
	"fmt"
	"strings"
)

// ConcurrentMigrationError is returned when a task of the same family is already RUNNING.
type ConcurrentMigrationError struct {
	TaskFamily string
	TaskArns   []string
}

func (e *ConcurrentMigrationError) Error() string {
	return fmt.Sprintf("at least one ECS task of family %s found in the running state. Task Arns: [%s]. Migrations exiting",
		e.TaskFamily, strings.Join(e.TaskArns, ", "))
}

// LaunchFailedError is returned when RunTask succeeds but hands back no task.
type LaunchFailedError struct {
	Group    string
	Failures []string
}

func (e *LaunchFailedError) Error() string {
	msg := fmt.Sprintf("unable to start ECS DB migration task %s", e.Group)
	if len(e.Failures) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Failures, "; "))
	}
	return msg
}

// TaskNotFoundError is returned when ECS has no task or container data for a started task.
type TaskNotFoundError struct {
	TaskArn string
	Reason  string
}

func (e *TaskNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ECS task %s not found: %s", e.TaskArn, e.Reason)
	}
	return fmt.Sprintf("ECS task %s not found or has no containers", e.TaskArn)
}

// MigrationFailedError is returned when the migration container exits non-zero.
// ExitCode is -1 when the container stopped without reporting one.
type MigrationFailedError struct {
	TaskArn  string
	ExitCode int32
	Reason   string
}

func (e *MigrationFailedError) Error() string {
	return fmt.Sprintf("DB Migration task %s exited with non-zero code %d (stopped reason: %q)", e.TaskArn, e.ExitCode, e.Reason)
}

// WaitTimeoutError is returned when a poll policy runs out of attempts.
type WaitTimeoutError struct {
	TaskArn      string
	TargetStatus string
	LastStatus   string
	Attempts     int
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("unable to obtain a %s status from task %s after %d attempts (last status %s)",
		e.TargetStatus, e.TaskArn, e.Attempts, e.LastStatus)
}
