package service

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwlTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamoTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

const fakeTaskArn = "arn:aws:ecs:us-west-2:123456789012:task/pulumi-migrations/9a8b7c6d5e4f"

// fakeECS launches fakeTaskArn and reports statuses in order, repeating the last one.
type fakeECS struct {
	mu sync.Mutex

	statuses []string
	exitCode int32

	runInput *ecs.RunTaskInput
}

func (f *fakeECS) ListTasks(_ context.Context, _ *ecs.ListTasksInput, _ ...func(*ecs.Options)) (*ecs.ListTasksOutput, error) {
	return &ecs.ListTasksOutput{}, nil
}

func (f *fakeECS) RunTask(_ context.Context, params *ecs.RunTaskInput, _ ...func(*ecs.Options)) (*ecs.RunTaskOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runInput = params
	return &ecs.RunTaskOutput{Tasks: []types.Task{{TaskArn: aws.String(fakeTaskArn)}}}, nil
}

func (f *fakeECS) DescribeTasks(_ context.Context, params *ecs.DescribeTasksInput, _ ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}

	return &ecs.DescribeTasksOutput{Tasks: []types.Task{{
		TaskArn:    aws.String(params.Tasks[0]),
		LastStatus: aws.String(status),
		Containers: []types.Container{{Name: aws.String(ContainerName), ExitCode: aws.Int32(f.exitCode)}},
	}}}, nil
}

func (f *fakeECS) launched() *ecs.RunTaskInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runInput
}

type fakeLogs struct {
	mu    sync.Mutex
	input *cloudwatchlogs.GetLogEventsInput
}

func (f *fakeLogs) GetLogEvents(_ context.Context, params *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = params
	return &cloudwatchlogs.GetLogEventsOutput{Events: []cwlTypes.OutputLogEvent{
		{Message: aws.String("migration 42 failed: duplicate column")},
	}}, nil
}

func (f *fakeLogs) requested() *cloudwatchlogs.GetLogEventsInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// fakeDynamo accepts every lock write and records the lease it was given.
type fakeDynamo struct {
	mu sync.Mutex

	table   string
	lease   int64
	puts    int
	deletes int
}

func (f *fakeDynamo) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.table = aws.ToString(params.TableName)

	acquired, _ := strconv.ParseInt(params.Item["acquired_at"].(*dynamoTypes.AttributeValueMemberN).Value, 10, 64)
	expires, _ := strconv.ParseInt(params.Item["expires_at"].(*dynamoTypes.AttributeValueMemberN).Value, 10, 64)
	f.lease = expires - acquired
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) snapshot() (table string, lease int64, puts int, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table, f.lease, f.puts, f.deletes
}

// stubMigrationClients replaces the AWS client factory for the duration of a test.
func stubMigrationClients(t *testing.T, clients *migrationClients) {
	previous := newMigrationClients
	newMigrationClients = func(context.Context, string, string) (*migrationClients, error) {
		return clients, nil
	}
	t.Cleanup(func() { newMigrationClients = previous })
}
