package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/pkg/errors"
)

const (
	statusRunning = "RUNNING"
	statusStopped = "STOPPED"
)

// PollPolicy bounds a wait loop. MaxAttempts of zero polls until the context ends.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

var (
	DefaultRunningPoll = PollPolicy{Interval: 10 * time.Second, MaxAttempts: 90}
	DefaultStoppedPoll = PollPolicy{Interval: 30 * time.Second, MaxAttempts: 240}
)

func (p PollPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Budget is the longest a wait under p can take, or zero when it is unbounded.
func (p PollPolicy) Budget() time.Duration {
	if p.MaxAttempts <= 0 {
		return 0
	}
	return p.Interval * time.Duration(p.MaxAttempts)
}

// RunBudget is the longest a run can spend waiting on ECS: the overall timeout when
// one is set, otherwise both poll budgets. Zero means nothing bounds the run.
func RunBudget(timeout time.Duration, running PollPolicy, stopped PollPolicy) time.Duration {
	if timeout > 0 {
		return timeout
	}

	r, s := running.Budget(), stopped.Budget()
	if r == 0 || s == 0 {
		return 0
	}
	return r + s
}

// WaitForCompletion blocks until the task has reached RUNNING and then STOPPED.
func (o *Orchestrator) WaitForCompletion(ctx context.Context, clusterId string, taskArn string) error {
	task, err := o.waitForStatus(ctx, clusterId, taskArn, statusRunning, o.runningPoll)
	if err != nil {
		return err
	}
	if aws.ToString(task.LastStatus) == statusStopped {
		return nil
	}
	_, err = o.waitForStatus(ctx, clusterId, taskArn, statusStopped, o.stoppedPoll)
	return err
}

// waitForStatus polls DescribeTasks until the task reports targetStatus. A task seen
// STOPPED while waiting for RUNNING has already been through RUNNING (or never will),
// so the wait ends there as well.
func (o *Orchestrator) waitForStatus(ctx context.Context, clusterId string, taskArn string, targetStatus string, policy PollPolicy) (*types.Task, error) {
	var lastStatus string
	for attempt := 1; ; attempt++ {
		task, err := o.describeTask(ctx, clusterId, taskArn)
		if err != nil {
			return nil, err
		}

		lastStatus = aws.ToString(task.LastStatus)
		if lastStatus == targetStatus {
			o.log.Info(fmt.Sprintf("DB Migrations task successfully moved to %s status...", targetStatus), nil)
			return task, nil
		}
		if lastStatus == statusStopped {
			o.log.Warn(fmt.Sprintf("DB Migrations task stopped before reaching %s status", targetStatus), nil)
			return task, nil
		}

		if policy.exhausted(attempt) {
			return nil, &WaitTimeoutError{
				TaskArn:      taskArn,
				TargetStatus: targetStatus,
				LastStatus:   lastStatus,
				Attempts:     attempt,
			}
		}

		o.log.Debug(fmt.Sprintf("DB Migrations task in %s status, waiting for %s", lastStatus, targetStatus), nil)
		if err := sleep(ctx, policy.Interval); err != nil {
			return nil, errors.Wrapf(err, "waiting for task %s to reach %s", taskArn, targetStatus)
		}
	}
}

func (o *Orchestrator) describeTask(ctx context.Context, clusterId string, taskArn string) (*types.Task, error) {
	result, err := o.client.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(clusterId),
		Tasks:   []string{taskArn},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "describing task %s", taskArn)
	}

	if len(result.Tasks) == 0 {
		notFound := &TaskNotFoundError{TaskArn: taskArn}
		if len(result.Failures) > 0 {
			notFound.Reason = aws.ToString(result.Failures[0].Reason)
		}
		return nil, notFound
	}

	return &result.Tasks[0], nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
