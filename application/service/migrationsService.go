package service

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws/dynamodb"
	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws/ecs"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/application/config"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/application/log"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/common"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration/dynamolock"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumiverse/pulumi-time/sdk/go/time"
)

const (
	cpu               = 256
	memoryReservation = 512

	ContainerName = "pulumi-migration"
	TaskFamily    = "pulumi-migration-task"
	mysqlPort     = 3306
)

func NewMigrationsService(ctx *pulumi.Context, name string, args *MigrationsContainerServiceArgs, opts ...pulumi.ResourceOption) (*MigrationsContainerService, error) {
	var resource MigrationsContainerService

	// create our parented options
	options := append(opts, pulumi.Parent(&resource))

	err := ctx.RegisterComponentResource("pulumi:dbMigrations", name, &resource, opts...)
	if err != nil {
		return nil, err
	}

	doc, err := NewSecretsManagerPolicy(ctx, name, args.Region, args.SecretsManagerPrefix, args.KmsServiceKeyId, args.AccountId, options...)
	if err != nil {
		return nil, err
	}

	role, policies, err := NewEcsRole(ctx, name, args.Region, pulumi.StringArray{doc}, options...)
	if err != nil {
		return nil, err
	}

	// freshly attached policies take a while to become visible to ECS
	propagation, err := time.NewSleep(ctx, fmt.Sprintf("%s-iam-propagation", name), &time.SleepArgs{
		CreateDuration: pulumi.String(fmt.Sprintf("%ds", args.Migration.IamPropagationSeconds)),
		Triggers: pulumi.StringMap{
			"executionRoleArn": role.Arn,
		},
	}, append(options, pulumi.DependsOn(policies))...)

	if err != nil {
		return nil, err
	}

	egress := ec2.SecurityGroupEgressArray{
		ec2.SecurityGroupEgressArgs{
			FromPort:       pulumi.Int(mysqlPort),
			ToPort:         pulumi.Int(mysqlPort),
			Protocol:       pulumi.String("TCP"),
			SecurityGroups: pulumi.StringArray{args.DatabaseArgs.SecurityGroupId},
			Description:    pulumi.String("Allow egress from migrations task to the database"),
		},
	}

	if args.EnablePrivateLoadBalancerAndLimitEgress {
		egress = append(egress, ec2.SecurityGroupEgressArgs{
			FromPort:       pulumi.Int(443),
			ToPort:         pulumi.Int(443),
			Protocol:       pulumi.String("TCP"),
			SecurityGroups: pulumi.StringArray{args.VpcEndpointSecurityGroupId},
			Description:    pulumi.String("Allow egress from migrations task to VPC Endpoint"),
		}, ec2.SecurityGroupEgressArgs{
			FromPort:      pulumi.Int(443),
			ToPort:        pulumi.Int(443),
			Protocol:      pulumi.String("TCP"),
			PrefixListIds: pulumi.StringArray{args.PrefixListId},
			Description:   pulumi.String("Allow egress from migrations task to S3 VPC Endpoint"),
		})
	} else {
		egress = append(egress, ec2.SecurityGroupEgressArgs{
			FromPort:    pulumi.Int(0),
			ToPort:      pulumi.Int(0),
			Protocol:    pulumi.String("-1"),
			CidrBlocks:  pulumi.ToStringArray([]string{"0.0.0.0/0"}),
			Description: pulumi.String("Allows egress to all IP addresses"),
		})
	}

	resource.SecurityGroup, err = ec2.NewSecurityGroup(ctx, fmt.Sprintf("%s-sg", name), &ec2.SecurityGroupArgs{
		VpcId:  args.VpcId,
		Egress: egress,
	}, options...)

	if err != nil {
		return nil, err
	}

	resource.Cluster, err = ecs.NewCluster(ctx, fmt.Sprintf("%s-cluster", name), &ecs.ClusterArgs{}, options...)
	if err != nil {
		return nil, err
	}

	ecrAccountId := args.AccountId
	if args.EcrRepoAccountId != "" {
		ecrAccountId = args.EcrRepoAccountId
	}

	imageName := fmt.Sprintf("pulumi/migrations:%s", args.ImageTag)
	fullQualifiedImage := common.NewEcrImageTag(ecrAccountId, args.Region, imageName, args.ImagePrefix)

	containerDef, err := newContainerDefinitions(ctx, name, args, fullQualifiedImage, options...)
	if err != nil {
		return nil, err
	}

	resource.TaskDefinition, err = ecs.NewTaskDefinition(ctx, fmt.Sprintf("%s-task-def", name), &ecs.TaskDefinitionArgs{
		Family:                  pulumi.String(TaskFamily),
		NetworkMode:             pulumi.String("awsvpc"),
		Cpu:                     pulumi.String(fmt.Sprintf("%d", cpu)),
		Memory:                  pulumi.String(fmt.Sprintf("%d", memoryReservation)),
		RequiresCompatibilities: pulumi.StringArray{pulumi.String("FARGATE")},
		ExecutionRoleArn:        role.Arn,
		ContainerDefinitions:    containerDef,
	}, options...)

	if err != nil {
		return nil, err
	}

	sgOptions := append(options, pulumi.DeleteBeforeReplace(true))
	dbRule, err := ec2.NewSecurityGroupRule(ctx, fmt.Sprintf("%s-migrations-to-db-rule", name), &ec2.SecurityGroupRuleArgs{
		Type:                  pulumi.String("ingress"),
		SecurityGroupId:       args.DatabaseArgs.SecurityGroupId,
		SourceSecurityGroupId: resource.SecurityGroup.ID(),
		FromPort:              pulumi.Int(mysqlPort),
		ToPort:                pulumi.Int(mysqlPort),
		Protocol:              pulumi.String("TCP"),
	}, sgOptions...)

	if err != nil {
		return nil, err
	}

	lockTableName := pulumi.String("").ToStringOutput()
	if args.Migration.EnableLock {
		resource.LockTable, err = newLockTable(ctx, name, options...)
		if err != nil {
			return nil, err
		}
		lockTableName = resource.LockTable.Name
	}
	resource.LockTableName = lockTableName

	resource.MigrationTaskArn = pulumi.String("").ToStringOutput()

	if ctx.DryRun() {
		ctx.Log.Info("Skipping database migration task on Pulumi Preview", nil)
		return &resource, registerOutputs(ctx, &resource)
	}

	if !args.ExecuteMigrations {
		ctx.Log.Info(fmt.Sprintf("Skipping database migration based on %s env var set to 'false'", config.ExecuteMigrationsEnvVar), nil)
		return &resource, registerOutputs(ctx, &resource)
	}

	resource.MigrationTaskArn = pulumi.All(
		resource.Cluster.ID(),
		resource.SecurityGroup.ID(),
		args.PrivateSubnetIds,
		resource.TaskDefinition.Arn,
		resource.TaskDefinition.Family,
		args.LogDriver.GroupName(),
		lockTableName,
		propagation.ID(),
		dbRule.ID(),
	).ApplyT(func(applyArgs []any) (string, error) {
		clusterId := applyArgs[0].(pulumi.ID)
		sgId := applyArgs[1].(pulumi.ID)
		privateSubnets := applyArgs[2].([]string)
		taskDefArn := applyArgs[3].(string)
		taskDefFamily := applyArgs[4].(string)
		logGroup := applyArgs[5].(string)
		lockTable := applyArgs[6].(string)

		if len(privateSubnets) == 0 {
			return "", errors.New("migrations task requires at least one private subnet")
		}

		return NewDatabaseMigrationTask(ctx, &MigrationTaskArgs{
			ContainerBaseArgs: &args.ContainerBaseArgs,
			Migration:         args.Migration,
			Cluster:           string(clusterId),
			SgId:              string(sgId),
			SubnetId:          privateSubnets[0],
			TaskDefinitionArn: taskDefArn,
			TaskFamily:        taskDefFamily,
			ContainerName:     ContainerName,
			LogGroup:          logGroup,
			LogStreamPrefix:   args.LogDriver.StreamPrefix(),
			LockTable:         lockTable,
		})
	}).(pulumi.StringOutput)

	return &resource, registerOutputs(ctx, &resource)
}

func registerOutputs(ctx *pulumi.Context, resource *MigrationsContainerService) error {
	return ctx.RegisterResourceOutputs(resource, pulumi.Map{
		"migrationTaskArn":  resource.MigrationTaskArn,
		"securityGroupId":   resource.SecurityGroup.ID(),
		"clusterName":       resource.Cluster.Name,
		"taskDefinitionArn": resource.TaskDefinition.Arn,
		"lockTableName":     resource.LockTableName,
	})
}

// lock records expire on their own so a crashed deployment never wedges the next one
func newLockTable(ctx *pulumi.Context, name string, options ...pulumi.ResourceOption) (*dynamodb.Table, error) {
	return dynamodb.NewTable(ctx, fmt.Sprintf("%s-lock", name), &dynamodb.TableArgs{
		BillingMode: pulumi.String("PAY_PER_REQUEST"),
		HashKey:     pulumi.String(dynamolock.KeyAttribute),
		Attributes: dynamodb.TableAttributeArray{
			dynamodb.TableAttributeArgs{
				Name: pulumi.String(dynamolock.KeyAttribute),
				Type: pulumi.String("S"),
			},
		},
		Ttl: &dynamodb.TableTtlArgs{
			AttributeName: pulumi.String(dynamolock.TTLAttribute),
			Enabled:       pulumi.Bool(true),
		},
	}, options...)
}

func newContainerDefinitions(ctx *pulumi.Context, name string, args *MigrationsContainerServiceArgs, image string, options ...pulumi.ResourceOption) (pulumi.StringOutput, error) {
	secrets, err := NewSecrets(ctx, fmt.Sprintf("%s-secrets", name), &SecretsArgs{
		Prefix:   args.SecretsManagerPrefix,
		KmsKeyId: args.KmsServiceKeyId,
		Secrets: []Secret{
			{
				Name:  "MYSQL_ROOT_USERNAME",
				Value: args.DatabaseArgs.Username,
			},
			{
				Name:  "MYSQL_ROOT_PASSWORD",
				Value: args.DatabaseArgs.Password,
			},
		},
	}, options...)

	if err != nil {
		return pulumi.StringOutput{}, err
	}

	taskDef := pulumi.All(
		args.DatabaseArgs.ClusterEndpoint,
		args.DatabaseArgs.Port,
		secrets.Secrets.ToStringMapArrayOutput(),
		args.LogDriver.GroupName()).ApplyT(func(applyArgs []any) (string, error) {

		dbClusterEndpoint := applyArgs[0].(string)
		dbPort := applyArgs[1].(int)
		secretsOutput := applyArgs[2].([]map[string]string)
		groupName := applyArgs[3].(string)

		containerJson, err := json.Marshal([]any{
			map[string]any{
				"name":              ContainerName,
				"image":             image,
				"cpu":               cpu,
				"memoryReservation": memoryReservation,
				"essential":         true,
				"environment": []map[string]any{
					CreateEnvVar("SKIP_CREATE_DB_USER", "true"),
					CreateEnvVar("PULUMI_DATABASE_ENDPOINT", fmt.Sprintf("%s:%d", dbClusterEndpoint, dbPort)),
					CreateEnvVar("PULUMI_DATABASE_PING_ENDPOINT", dbClusterEndpoint),
				},
				"secrets":          secretsOutput,
				"logConfiguration": args.LogDriver.GetConfiguration(groupName),
			},
		})

		if err != nil {
			return "", err
		}

		return string(containerJson), nil
	}).(pulumi.StringOutput)

	return taskDef, nil
}

type MigrationsContainerServiceArgs struct {
	ContainerBaseArgs

	DatabaseArgs      *config.DatabaseArgs
	Migration         *config.MigrationArgs
	LogDriver         log.LogDriver
	EcrRepoAccountId  string
	ExecuteMigrations bool
	ImageTag          string
	ImagePrefix       string
}

type MigrationsContainerService struct {
	pulumi.ResourceState

	SecurityGroup  *ec2.SecurityGroup
	Cluster        *ecs.Cluster
	TaskDefinition *ecs.TaskDefinition
	LockTable      *dynamodb.Table

	LockTableName    pulumi.StringOutput
	MigrationTaskArn pulumi.StringOutput
}
