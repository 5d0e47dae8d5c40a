package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	testCluster    = "arn:aws:ecs:us-west-2:123456789012:cluster/pulumi-migrations"
	testFamily     = "pulumi-migration-task"
	testTaskDefArn = "arn:aws:ecs:us-west-2:123456789012:task-definition/pulumi-migration-task:3"
	testTaskArn    = "arn:aws:ecs:us-west-2:123456789012:task/pulumi-migrations/0f1e2d3c4b5a"
)

// fakeECS answers ListTasks with runningTasks, RunTask with runOutput and
// DescribeTasks with statuses in order, repeating the last one.
type fakeECS struct {
	mu sync.Mutex

	runningTasks []string
	listErr      error
	// listPages, when set, is served one page per ListTasks call, chained by NextToken.
	listPages    [][]string
	listTokens   []*string

	runOutput *ecs.RunTaskOutput
	runErr    error

	statuses      []string
	containers    []types.Container
	stoppedReason string
	noTasks       bool
	describeErr   error

	listCalls     int
	runCalls      int
	describeCalls int
	lastRunInput  *ecs.RunTaskInput
}

func newHappyECS() *fakeECS {
	return &fakeECS{
		runOutput: &ecs.RunTaskOutput{
			Tasks: []types.Task{{TaskArn: aws.String(testTaskArn)}},
		},
		statuses:   []string{"RUNNING", "STOPPED"},
		containers: []types.Container{{Name: aws.String("pulumi-migration"), ExitCode: aws.Int32(0)}},
	}
}

func (f *fakeECS) ListTasks(_ context.Context, params *ecs.ListTasksInput, _ ...func(*ecs.Options)) (*ecs.ListTasksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listPages != nil {
		f.listTokens = append(f.listTokens, params.NextToken)
		page := 0
		if params.NextToken != nil {
			page, _ = strconv.Atoi(strings.TrimPrefix(*params.NextToken, "page-"))
		}

		out := &ecs.ListTasksOutput{TaskArns: append([]string(nil), f.listPages[page]...)}
		if page+1 < len(f.listPages) {
			out.NextToken = aws.String(fmt.Sprintf("page-%d", page+1))
		}
		return out, nil
	}
	return &ecs.ListTasksOutput{TaskArns: append([]string(nil), f.runningTasks...)}, nil
}

func (f *fakeECS) RunTask(_ context.Context, params *ecs.RunTaskInput, _ ...func(*ecs.Options)) (*ecs.RunTaskOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	f.lastRunInput = params
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.runOutput, nil
}

func (f *fakeECS) DescribeTasks(_ context.Context, params *ecs.DescribeTasksInput, _ ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.noTasks {
		return &ecs.DescribeTasksOutput{
			Failures: []types.Failure{{Arn: aws.String(params.Tasks[0]), Reason: aws.String("MISSING")}},
		}, nil
	}

	idx := f.describeCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}

	task := types.Task{
		TaskArn:    aws.String(params.Tasks[0]),
		LastStatus: aws.String(f.statuses[idx]),
		Containers: f.containers,
	}
	if f.stoppedReason != "" {
		task.StoppedReason = aws.String(f.stoppedReason)
	}
	return &ecs.DescribeTasksOutput{Tasks: []types.Task{task}}, nil
}

type logEntry struct {
	level string
	msg   string
}

// recordingLog implements pulumi.Log.
type recordingLog struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLog) add(level string, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
	return nil
}

func (l *recordingLog) Debug(msg string, _ *pulumi.LogArgs) error { return l.add("debug", msg) }
func (l *recordingLog) Info(msg string, _ *pulumi.LogArgs) error  { return l.add("info", msg) }
func (l *recordingLog) Warn(msg string, _ *pulumi.LogArgs) error  { return l.add("warn", msg) }
func (l *recordingLog) Error(msg string, _ *pulumi.LogArgs) error { return l.add("error", msg) }

func (l *recordingLog) contains(level string, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

type fakeLocker struct {
	acquireErr error
	releaseErr error
	acquired   []string
	released   []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired = append(l.acquired, key)
	return nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.released = append(l.released, key)
	return l.releaseErr
}

type fakeTailer struct {
	lines []string
	err   error
	calls int
}

func (t *fakeTailer) Tail(_ context.Context, _ string) ([]string, error) {
	t.calls++
	return t.lines, t.err
}

type fakeCloudWatchLogs struct {
	lastInput *cloudwatchlogs.GetLogEventsInput
	output    *cloudwatchlogs.GetLogEventsOutput
	err       error
}

func (f *fakeCloudWatchLogs) GetLogEvents(_ context.Context, params *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}
