package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/application/log"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

const ExecuteMigrationsEnvVar = "PULUMI_EXECUTE_MIGRATIONS"

func NewConfig(ctx *pulumi.Context) (*ConfigArgs, error) {
	var resource ConfigArgs

	caller, err := aws.GetCallerIdentity(ctx, nil, nil)
	if err != nil {
		return nil, err
	}

	// aws account id we are current deploying to
	resource.AccountId = caller.AccountId

	appConfig := config.New(ctx, "")
	awsConfig := config.New(ctx, "aws")

	resource.Region = awsConfig.Require("region")
	resource.Profile = awsConfig.Get("profile")

	resource.ProjectName = ctx.Project()
	resource.StackName = ctx.Stack()

	// we require these values to be present in configuration (aka already created in AWS account)
	resource.KmsServiceKeyId = appConfig.Require("kmsServiceKeyId")
	resource.ImageTag = appConfig.Require("imageTag")

	// if not present, we assume ECR repo is present in our "current" AWS account
	resource.EcrRepoAccountId = appConfig.Get("ecrRepoAccountId")
	resource.ImagePrefix = appConfig.Get("imagePrefix")

	resource.EnablePrivateLoadBalancerAndLimitEgress = appConfig.GetBool("enablePrivateLoadBalancerAndLimitEgress")

	// baseStack == infrastructure stack
	stackRef, err := pulumi.NewStackReference(ctx, appConfig.Require("baseStackReference"), nil)
	if err != nil {
		return nil, err
	}

	resource.VpcId = stackRef.GetStringOutput(pulumi.String("vpcId"))
	resource.PrivateSubnetIds = OutputToStringArray(stackRef.GetOutput(pulumi.String("privateSubnetIds")))

	resource.DatabaseArgs = &DatabaseArgs{
		ClusterEndpoint: stackRef.GetStringOutput(pulumi.String("dbClusterEndpoint")),
		Name:            stackRef.GetStringOutput(pulumi.String("dbName")),
		Username:        stackRef.GetStringOutput(pulumi.String("dbUsername")),
		Password:        stackRef.GetStringOutput(pulumi.String("dbPassword")),
		Port:            stackRef.GetIntOutput(pulumi.String("dbPort")),
		SecurityGroupId: stackRef.GetStringOutput(pulumi.String("dbSecurityGroupId")),
	}

	// only consumed when egress is limited to the VPC endpoints
	resource.EndpointSecurityGroup = stackRef.GetStringOutput(pulumi.String("endpointSecurityGroupId"))
	resource.PrefixListId = stackRef.GetStringOutput(pulumi.String("s3EndpointPrefixId"))

	resource.LogType = log.LogType(appConfig.GetFloat64("logType"))
	resource.LogArgs = appConfig.Get("logArgs")

	resource.ExecuteMigrations, err = executeMigrations()
	if err != nil {
		return nil, err
	}

	migrationArgs, err := hydrateMigrationValues(appConfig)
	if err != nil {
		return nil, err
	}
	resource.MigrationArgs = migrationArgs

	return &resource, nil
}

// migrations run unless PULUMI_EXECUTE_MIGRATIONS is explicitly false
func executeMigrations() (bool, error) {
	value, ok := os.LookupEnv(ExecuteMigrationsEnvVar)
	if !ok || value == "" {
		return true, nil
	}

	execute, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", ExecuteMigrationsEnvVar, value)
	}
	return execute, nil
}

func hydrateMigrationValues(appConfig *config.Config) (*MigrationArgs, error) {
	args := &MigrationArgs{
		RunningPoll: migration.DefaultRunningPoll,
		StoppedPoll: migration.DefaultStoppedPoll,
	}

	// zero keeps the default interval
	runningSeconds, err := optionalInt(appConfig, "migrationRunningPollSeconds", 0)
	if err != nil {
		return nil, err
	}
	if runningSeconds > 0 {
		args.RunningPoll.Interval = time.Duration(runningSeconds) * time.Second
	}

	if args.RunningPoll.MaxAttempts, err = optionalInt(appConfig, "migrationRunningMaxAttempts", args.RunningPoll.MaxAttempts); err != nil {
		return nil, err
	}

	stoppedSeconds, err := optionalInt(appConfig, "migrationStoppedPollSeconds", 0)
	if err != nil {
		return nil, err
	}
	if stoppedSeconds > 0 {
		args.StoppedPoll.Interval = time.Duration(stoppedSeconds) * time.Second
	}

	if args.StoppedPoll.MaxAttempts, err = optionalInt(appConfig, "migrationStoppedMaxAttempts", args.StoppedPoll.MaxAttempts); err != nil {
		return nil, err
	}

	timeoutMinutes, err := optionalInt(appConfig, "migrationTimeoutMinutes", 0)
	if err != nil {
		return nil, err
	}
	args.Timeout = time.Duration(timeoutMinutes) * time.Minute

	if args.IamPropagationSeconds, err = optionalInt(appConfig, "iamPropagationSeconds", 30); err != nil {
		return nil, err
	}

	tailLines, err := optionalInt(appConfig, "migrationLogTailLines", 0)
	if err != nil {
		return nil, err
	}
	args.LogTailLines = int32(tailLines)
	if args.LogTailLines == 0 {
		args.LogTailLines = migration.DefaultTailLines
	}

	args.EnableLock = appConfig.GetBool("enableMigrationLock")

	return args, nil
}

// optionalInt reads a non-negative integer key. A missing key yields fallback; a
// malformed or negative value is an error rather than a silent default.
func optionalInt(appConfig *config.Config, key string, fallback int) (int, error) {
	v, err := appConfig.TryInt(key)
	if errors.Is(err, config.ErrMissingVar) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s cannot be negative, got %d", key, v)
	}
	return v, nil
}

func OutputToStringArray(output pulumi.AnyOutput) pulumi.StringArrayOutput {
	return output.ApplyT(func(out interface{}) []string {
		var res []string
		if out != nil {
			for _, v := range out.([]interface{}) {
				res = append(res, v.(string))
			}
		}
		return res
	}).(pulumi.StringArrayOutput)
}

type ConfigArgs struct {
	// AWS Values
	Region    string
	Profile   string
	AccountId string

	// Project Values
	ProjectName string
	StackName   string

	// Pre-Existing AWS Resources
	KmsServiceKeyId       string
	VpcId                 pulumi.StringOutput
	PrivateSubnetIds      pulumi.StringArrayOutput
	DatabaseArgs          *DatabaseArgs
	EndpointSecurityGroup pulumi.StringOutput
	PrefixListId          pulumi.StringOutput

	ImageTag         string
	ImagePrefix      string
	EcrRepoAccountId string

	EnablePrivateLoadBalancerAndLimitEgress bool
	ExecuteMigrations                       bool
	MigrationArgs                           *MigrationArgs

	LogType log.LogType
	LogArgs string
}

type DatabaseArgs struct {
	ClusterEndpoint pulumi.StringOutput
	Username        pulumi.StringOutput
	Password        pulumi.StringOutput
	Name            pulumi.StringOutput
	SecurityGroupId pulumi.StringOutput
	Port            pulumi.IntOutput
}

type MigrationArgs struct {
	RunningPoll migration.PollPolicy
	StoppedPoll migration.PollPolicy

	// Timeout bounds the whole run; zero leaves it to the poll policies.
	Timeout time.Duration

	IamPropagationSeconds int
	EnableLock            bool
	LogTailLines          int32
}
