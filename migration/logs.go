package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwlTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	pkgerrors "github.com/pkg/errors"
)

const DefaultTailLines = 50

// CloudWatchTailer reads the awslogs stream of the migration container.
type CloudWatchTailer struct {
	Client        CloudWatchLogsClient
	LogGroup      string
	StreamPrefix  string
	ContainerName string
	Lines         int32
}

// Tail returns up to t.Lines of the most recent log messages, oldest first.
// A stream that does not exist yet yields no lines and no error.
func (t *CloudWatchTailer) Tail(ctx context.Context, taskArn string) ([]string, error) {
	limit := t.Lines
	if limit <= 0 {
		limit = DefaultTailLines
	}

	stream := LogStreamName(t.StreamPrefix, t.ContainerName, taskArn)
	out, err := t.Client.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(t.LogGroup),
		LogStreamName: aws.String(stream),
		StartFromHead: aws.Bool(false),
		Limit:         aws.Int32(limit),
	})
	if err != nil {
		var rnf *cwlTypes.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return nil, nil
		}
		return nil, pkgerrors.Wrapf(err, "reading log stream %s", stream)
	}

	lines := make([]string, 0, len(out.Events))
	for _, e := range out.Events {
		lines = append(lines, strings.TrimRight(aws.ToString(e.Message), "\n"))
	}
	return lines, nil
}

// LogStreamName follows the awslogs driver layout: prefix/container/task-id.
func LogStreamName(prefix string, containerName string, taskArn string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, containerName, TaskId(taskArn))
}

// TaskId is the last path segment of a task ARN.
func TaskId(taskArn string) string {
	if i := strings.LastIndex(taskArn, "/"); i >= 0 {
		return taskArn[i+1:]
	}
	return taskArn
}
