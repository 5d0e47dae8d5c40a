package migration

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// VerifyOutcome inspects the stopped task and returns nil only when its first
// container exited with code 0.
func (o *Orchestrator) VerifyOutcome(ctx context.Context, clusterId string, taskArn string) error {
	task, err := o.describeTask(ctx, clusterId, taskArn)
	if err != nil {
		return err
	}

	if len(task.Containers) == 0 {
		return &TaskNotFoundError{TaskArn: taskArn}
	}

	container := task.Containers[0]
	if container.ExitCode == nil {
		return &MigrationFailedError{TaskArn: taskArn, ExitCode: -1, Reason: stoppedReason(task)}
	}

	if exitCode := *container.ExitCode; exitCode != 0 {
		return &MigrationFailedError{TaskArn: taskArn, ExitCode: exitCode, Reason: stoppedReason(task)}
	}

	return nil
}

// stoppedReason prefers the task's reason and falls back to the container's.
func stoppedReason(task *types.Task) string {
	if reason := aws.ToString(task.StoppedReason); reason != "" {
		return reason
	}
	if len(task.Containers) > 0 {
		return aws.ToString(task.Containers[0].Reason)
	}
	return ""
}
