package log

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws/cloudwatch"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const defaultRetentionDays = 7

func NewAwsLogs(ctx *pulumi.Context, name string, args *AwsArgs, opts ...pulumi.ResourceOption) (*AwsLogs, error) {
	retention := args.RetentionDays
	if retention == 0 {
		retention = defaultRetentionDays
	}

	lg, err := cloudwatch.NewLogGroup(ctx, fmt.Sprintf("awslogs-%s", name), &cloudwatch.LogGroupArgs{
		NamePrefix:      pulumi.String(fmt.Sprintf("%s-logs", name)),
		RetentionInDays: pulumi.Int(retention),
	}, opts...)

	if err != nil {
		return nil, err
	}

	prefix := args.StreamPrefix
	if prefix == "" {
		prefix = name
	}

	return &AwsLogs{
		LogGroup: lg,
		Region:   args.Region,
		prefix:   prefix,
	}, nil
}

func (l *AwsLogs) GroupName() pulumi.StringOutput {
	return l.LogGroup.Name
}

func (l *AwsLogs) StreamPrefix() string {
	return l.prefix
}

func (l *AwsLogs) GetConfiguration(groupName string) map[string]any {
	return map[string]any{
		"logDriver": "awslogs",
		"options": map[string]any{
			"awslogs-region":        l.Region,
			"awslogs-group":         groupName,
			"awslogs-stream-prefix": l.prefix,
		},
	}
}

type AwsArgs struct {
	Region        string `json:"-"`
	RetentionDays int    `json:"retentionDays"`
	StreamPrefix  string `json:"streamPrefix"`
}

type AwsLogs struct {
	Region   string
	LogGroup *cloudwatch.LogGroup

	prefix string
}
