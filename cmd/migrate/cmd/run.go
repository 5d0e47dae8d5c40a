package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the migration task and wait for it to finish",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.String("task-definition", "", "Task definition arn of the migration task")
	flags.String("security-group", "", "Security group attached to the task")
	flags.String("subnet", "", "Private subnet the task is placed in")
	flags.String("lock-table", "", "DynamoDB table used as an advisory migration lock")

	for _, name := range []string{"task-definition", "security-group", "subnet", "lock-table"} {
		if err := settings.BindPFlag(flagKey(name), flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		return err
	}

	if err = cfg.validateTarget(); err != nil {
		return err
	}

	clients, err := newAWSClients(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create aws clients: %w", err)
	}

	return runMigration(cmd.Context(), cfg, clients, logger, cmd.OutOrStdout())
}

// runMigration executes one run and prints the task arn on success.
func runMigration(ctx context.Context, cfg *Config, clients *awsClients, log *slog.Logger, out io.Writer) error {
	run := &migration.Run{
		ClusterId:         cfg.Cluster,
		TaskFamily:        cfg.TaskFamily,
		TaskDefinitionArn: cfg.Target.TaskDefinition,
		SecurityGroupId:   cfg.Target.SecurityGroup,
		SubnetId:          cfg.Target.Subnet,
	}

	err := newOrchestrator(ctx, cfg, clients, log).Execute(ctx, run)
	log.Info("migration finished", "task", run.TaskArn, "state", run.State.String(), "outcome", string(run.Outcome()))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, run.TaskArn)
	return err
}
