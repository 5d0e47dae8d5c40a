package log

import (
	"encoding/json"
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

type LogType int64

const (
	AwsLogType LogType = iota
)

// NewLogs creates the log destination for a container. jsonArgs carries driver
// specific settings, eg {"retentionDays": 14}.
func NewLogs(ctx *pulumi.Context, logType LogType, name string, region string, jsonArgs string, opts ...pulumi.ResourceOption) (LogDriver, error) {
	switch logType {
	case AwsLogType:
		ctx.Log.Debug("creating awslogs (cloudwatch) log configuration", nil)

		args := AwsArgs{}
		if jsonArgs != "" {
			if err := json.Unmarshal([]byte(jsonArgs), &args); err != nil {
				return nil, fmt.Errorf("invalid logArgs for awslogs: %w", err)
			}
		}
		args.Region = region

		return NewAwsLogs(ctx, name, &args, opts...)
	}

	return nil, fmt.Errorf("unsupported log type %d", logType)
}

// LogDriver describes where a container's output goes. The migration task reads
// its own stream back on failure, so the group name and stream prefix are exposed.
type LogDriver interface {
	GroupName() pulumi.StringOutput
	StreamPrefix() string
	GetConfiguration(groupName string) map[string]any
}
