package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

const (
	testCluster = "pulumi-migrations"
	testTaskArn = "arn:aws:ecs:us-west-2:123456789012:task/pulumi-migrations/9a8b7c6d"
)

// stubECS reports runningTasks on ListTasks and walks through statuses on DescribeTasks.
type stubECS struct {
	runningTasks []string
	statuses     []string
	exitCode     *int32

	describeCalls int
}

func (s *stubECS) ListTasks(_ context.Context, _ *ecs.ListTasksInput, _ ...func(*ecs.Options)) (*ecs.ListTasksOutput, error) {
	return &ecs.ListTasksOutput{TaskArns: s.runningTasks}, nil
}

func (s *stubECS) RunTask(_ context.Context, _ *ecs.RunTaskInput, _ ...func(*ecs.Options)) (*ecs.RunTaskOutput, error) {
	return &ecs.RunTaskOutput{Tasks: []types.Task{{TaskArn: aws.String(testTaskArn)}}}, nil
}

func (s *stubECS) DescribeTasks(_ context.Context, _ *ecs.DescribeTasksInput, _ ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error) {
	i := s.describeCalls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.describeCalls++

	return &ecs.DescribeTasksOutput{Tasks: []types.Task{{
		TaskArn:    aws.String(testTaskArn),
		LastStatus: aws.String(s.statuses[i]),
		Containers: []types.Container{{Name: aws.String("pulumi-migration"), ExitCode: s.exitCode}},
	}}}, nil
}

type stubLogs struct {
	messages []string
	input    *cloudwatchlogs.GetLogEventsInput
}

func (s *stubLogs) GetLogEvents(_ context.Context, params *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	s.input = params

	events := make([]cwtypes.OutputLogEvent, 0, len(s.messages))
	for _, m := range s.messages {
		events = append(events, cwtypes.OutputLogEvent{Message: aws.String(fmt.Sprintf("%s\n", m))})
	}
	return &cloudwatchlogs.GetLogEventsOutput{Events: events}, nil
}

// stubDynamo accepts every lock write and records the lease of the last one.
type stubDynamo struct {
	table   string
	lease   time.Duration
	puts    int
	deletes int
}

func (s *stubDynamo) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.puts++
	s.table = aws.ToString(params.TableName)

	acquired, _ := strconv.ParseInt(params.Item["acquired_at"].(*dynamotypes.AttributeValueMemberN).Value, 10, 64)
	expires, _ := strconv.ParseInt(params.Item["expires_at"].(*dynamotypes.AttributeValueMemberN).Value, 10, 64)
	s.lease = time.Duration(expires-acquired) * time.Second
	return &dynamodb.PutItemOutput{}, nil
}

func (s *stubDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (s *stubDynamo) DeleteItem(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	s.deletes++
	return &dynamodb.DeleteItemOutput{}, nil
}
