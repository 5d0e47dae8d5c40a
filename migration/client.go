// Package migration runs the database migration task of an ECS hosted deployment
// exactly once, waits for it to finish and reports whether it succeeded.
package migration

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
)

// ECSClient is the subset of the ECS control plane the orchestrator consumes.
// *ecs.Client satisfies it.
type ECSClient interface {
	ListTasks(
		ctx context.Context,
		params *ecs.ListTasksInput,
		optFns ...func(*ecs.Options),
	) (*ecs.ListTasksOutput, error)
	RunTask(
		ctx context.Context,
		params *ecs.RunTaskInput,
		optFns ...func(*ecs.Options),
	) (*ecs.RunTaskOutput, error)
	DescribeTasks(
		ctx context.Context,
		params *ecs.DescribeTasksInput,
		optFns ...func(*ecs.Options),
	) (*ecs.DescribeTasksOutput, error)
}

// CloudWatchLogsClient is used to read the migration container's log stream.
type CloudWatchLogsClient interface {
	GetLogEvents(
		ctx context.Context,
		params *cloudwatchlogs.GetLogEventsInput,
		optFns ...func(*cloudwatchlogs.Options),
	) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// Locker guards a migration run with an advisory lock keyed by cluster and task family.
type Locker interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// LogTailer returns the last lines written by a task's migration container.
type LogTailer interface {
	Tail(ctx context.Context, taskArn string) ([]string, error)
}
