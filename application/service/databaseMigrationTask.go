package service

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/pkg/errors"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/application/config"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration/dynamolock"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

type migrationClients struct {
	ecs    migration.ECSClient
	logs   migration.CloudWatchLogsClient
	dynamo dynamolock.Client
}

// newMigrationClients is swapped out in tests.
var newMigrationClients = func(ctx context.Context, region string, profile string) (*migrationClients, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	return &migrationClients{
		ecs:    ecs.NewFromConfig(cfg),
		logs:   cloudwatchlogs.NewFromConfig(cfg),
		dynamo: dynamodb.NewFromConfig(cfg),
	}, nil
}

// NewDatabaseMigrationTask runs the migration task to completion and returns its arn.
func NewDatabaseMigrationTask(ctx *pulumi.Context, args *MigrationTaskArgs) (string, error) {
	runCtx := context.Background()
	if args.Migration.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, args.Migration.Timeout)
		defer cancel()
	}

	clients, err := newMigrationClients(runCtx, args.ContainerBaseArgs.Region, args.ContainerBaseArgs.Profile)
	if err != nil {
		return "", err
	}

	run := &migration.Run{
		ClusterId:         args.Cluster,
		TaskFamily:        args.TaskFamily,
		TaskDefinitionArn: args.TaskDefinitionArn,
		SecurityGroupId:   args.SgId,
		SubnetId:          args.SubnetId,
	}

	err = migration.NewOrchestrator(clients.ecs, ctx.Log, orchestratorOptions(clients, args)...).Execute(runCtx, run)
	return run.TaskArn, err
}

func orchestratorOptions(clients *migrationClients, args *MigrationTaskArgs) []migration.Option {
	opts := []migration.Option{
		migration.WithRunningPoll(args.Migration.RunningPoll),
		migration.WithStoppedPoll(args.Migration.StoppedPoll),
	}

	if args.LogGroup != "" {
		opts = append(opts, migration.WithLogTailer(&migration.CloudWatchTailer{
			Client:        clients.logs,
			LogGroup:      args.LogGroup,
			StreamPrefix:  args.LogStreamPrefix,
			ContainerName: args.ContainerName,
			Lines:         args.Migration.LogTailLines,
		}))
	}

	if args.LockTable != "" {
		// the lease has to outlive the run or a second deployment could take the lock mid-migration
		budget := migration.RunBudget(args.Migration.Timeout, args.Migration.RunningPoll, args.Migration.StoppedPoll)
		opts = append(opts, migration.WithLocker(dynamolock.New(clients.dynamo, args.LockTable,
			dynamolock.WithTTL(dynamolock.LeaseFor(budget)))))
	}

	return opts
}

type MigrationTaskArgs struct {
	ContainerBaseArgs *ContainerBaseArgs
	Migration         *config.MigrationArgs

	Cluster           string
	SgId              string
	SubnetId          string
	TaskDefinitionArn string
	TaskFamily        string

	ContainerName   string
	LogGroup        string
	LogStreamPrefix string

	// LockTable is empty when the advisory lock is disabled.
	LockTable string
}
