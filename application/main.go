package main

import (
	"strings"

	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/application/config"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/application/log"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/application/service"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {

		config, err := config.NewConfig(ctx)
		if err != nil {
			return err
		}

		secretsPrefix := strings.Join([]string{config.ProjectName, config.StackName}, "/")

		// common container based args for our base class
		baseArgs := &service.ContainerBaseArgs{
			AccountId:                               config.AccountId,
			EnablePrivateLoadBalancerAndLimitEgress: config.EnablePrivateLoadBalancerAndLimitEgress,
			KmsServiceKeyId:                         config.KmsServiceKeyId,
			Profile:                                 config.Profile,
			PrefixListId:                            config.PrefixListId,
			PrivateSubnetIds:                        config.PrivateSubnetIds,
			Region:                                  config.Region,
			SecretsManagerPrefix:                    secretsPrefix,
			VpcId:                                   config.VpcId,
			VpcEndpointSecurityGroupId:              config.EndpointSecurityGroup,
		}

		// logs will be created based on configuration
		migrationLogs, err := log.NewLogs(ctx, config.LogType, "pulumi-migration", config.Region, config.LogArgs)
		if err != nil {
			return err
		}

		migrations, err := service.NewMigrationsService(ctx, "pulumi-migrations", &service.MigrationsContainerServiceArgs{
			ContainerBaseArgs: *baseArgs,
			DatabaseArgs:      config.DatabaseArgs,
			Migration:         config.MigrationArgs,
			LogDriver:         migrationLogs,
			EcrRepoAccountId:  config.EcrRepoAccountId,
			ExecuteMigrations: config.ExecuteMigrations,
			ImageTag:          config.ImageTag,
			ImagePrefix:       config.ImagePrefix,
		})

		if err != nil {
			return err
		}

		ctx.Export("migrationTaskArn", migrations.MigrationTaskArn)
		ctx.Export("migrationsSecurityGroupId", migrations.SecurityGroup.ID())
		ctx.Export("migrationsClusterName", migrations.Cluster.Name)
		ctx.Export("migrationsLogGroupName", migrationLogs.GroupName())
		ctx.Export("migrationLockTableName", migrations.LockTableName)

		return nil
	})
}
