package migration

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/pkg/errors"
)

// CheckSingleton fails with *ConcurrentMigrationError when any task of taskFamily is
// RUNNING on the cluster. It does not lock anything and has no side effects.
func (o *Orchestrator) CheckSingleton(ctx context.Context, clusterId string, taskFamily string) error {
	o.log.Info(fmt.Sprintf("Checking for executing ECS tasks for family %s", taskFamily), nil)

	var running []string
	var nextToken *string
	for {
		result, err := o.client.ListTasks(ctx, &ecs.ListTasksInput{
			Cluster:       &clusterId,
			Family:        &taskFamily,
			DesiredStatus: types.DesiredStatusRunning,
			NextToken:     nextToken,
		})
		if err != nil {
			return errors.Wrapf(err, "listing running tasks for family %s", taskFamily)
		}

		running = append(running, result.TaskArns...)
		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}

	if len(running) == 0 {
		o.log.Info("No executing ECS tasks found in the RUNNING state. Migrations starting...", nil)
		return nil
	}

	return &ConcurrentMigrationError{TaskFamily: taskFamily, TaskArns: running}
}
