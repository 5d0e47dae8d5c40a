package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration/dynamolock"
)

type awsClients struct {
	ecs    migration.ECSClient
	logs   migration.CloudWatchLogsClient
	dynamo dynamolock.Client
}

// newAWSClients is a variable so tests can swap in fakes.
var newAWSClients = func(ctx context.Context, cfg *Config) (*awsClients, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &awsClients{
		ecs:    ecs.NewFromConfig(awsCfg),
		logs:   cloudwatchlogs.NewFromConfig(awsCfg),
		dynamo: dynamodb.NewFromConfig(awsCfg),
	}, nil
}

func newTailer(cfg *Config, clients *awsClients) *migration.CloudWatchTailer {
	return &migration.CloudWatchTailer{
		Client:        clients.logs,
		LogGroup:      cfg.LogGroup,
		StreamPrefix:  cfg.StreamPrefix,
		ContainerName: cfg.ContainerName,
		Lines:         cfg.TailLines,
	}
}

func newOrchestrator(ctx context.Context, cfg *Config, clients *awsClients, log *slog.Logger) *migration.Orchestrator {
	opts := []migration.Option{
		migration.WithRunningPoll(cfg.RunningPoll()),
		migration.WithStoppedPoll(cfg.StoppedPoll()),
	}

	if cfg.LogGroup != "" {
		opts = append(opts, migration.WithLogTailer(newTailer(cfg, clients)))
	}

	if cfg.LockTable != "" {
		opts = append(opts, migration.WithLocker(dynamolock.New(clients.dynamo, cfg.LockTable,
			dynamolock.WithTTL(lockLease(ctx, cfg)))))
	}

	return migration.NewOrchestrator(clients.ecs, slogLog{logger: log}, opts...)
}

// lockLease outlives the run: the --timeout deadline when one is set, otherwise the
// poll budgets.
func lockLease(ctx context.Context, cfg *Config) time.Duration {
	var remaining time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		remaining = time.Until(deadline)
	}
	return dynamolock.LeaseFor(migration.RunBudget(remaining, cfg.RunningPoll(), cfg.StoppedPoll()))
}
