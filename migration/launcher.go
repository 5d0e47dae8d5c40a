package migration

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/pkg/errors"
)

// Launch starts a single Fargate replica of the migration task definition in the
// run's subnet and security group, without a public IP, and returns its ARN.
func (o *Orchestrator) Launch(ctx context.Context, run *Run) (string, error) {
	taskName := fmt.Sprintf("DBMigration-%d", o.now().Unix())

	o.log.Info(fmt.Sprintf("Attempting to start ECS Task %s for DB migration", taskName), nil)

	result, err := o.client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(run.ClusterId),
		Count:          aws.Int32(1),
		Group:          aws.String(taskName),
		TaskDefinition: aws.String(run.TaskDefinitionArn),
		LaunchType:     types.LaunchTypeFargate,
		NetworkConfiguration: &types.NetworkConfiguration{
			AwsvpcConfiguration: &types.AwsVpcConfiguration{
				AssignPublicIp: types.AssignPublicIpDisabled,
				SecurityGroups: []string{run.SecurityGroupId},
				Subnets:        []string{run.SubnetId},
			},
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "starting ECS DB migration task %s", taskName)
	}

	if len(result.Tasks) == 0 || result.Tasks[0].TaskArn == nil {
		launchErr := &LaunchFailedError{Group: taskName}
		for _, f := range result.Failures {
			launchErr.Failures = append(launchErr.Failures,
				fmt.Sprintf("%s: %s", aws.ToString(f.Arn), aws.ToString(f.Reason)))
		}
		return "", launchErr
	}

	taskArn := *result.Tasks[0].TaskArn
	o.log.Info(fmt.Sprintf("Started ECS Task %s (%s)", taskName, taskArn), nil)
	return taskArn, nil
}
