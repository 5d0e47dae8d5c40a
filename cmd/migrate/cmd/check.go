package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a migration task is currently running",
	Long: `Checks the cluster for RUNNING tasks of the migration task family.
Exits 0 when none are found and 2 when a migration is in progress.`,
	Args: cobra.NoArgs,
	RunE: checkRun,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkRun(cmd *cobra.Command, _ []string) error {
	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		return err
	}

	clients, err := newAWSClients(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create aws clients: %w", err)
	}

	return checkMigration(cmd.Context(), cfg, clients, logger, cmd.OutOrStdout())
}

func checkMigration(ctx context.Context, cfg *Config, clients *awsClients, log *slog.Logger, out io.Writer) error {
	// the lock only guards run; check reports what ECS sees
	orchestrator := migration.NewOrchestrator(clients.ecs, slogLog{logger: log})

	if err := orchestrator.CheckSingleton(ctx, cfg.Cluster, cfg.TaskFamily); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "no %s task is running in %s\n", cfg.TaskFamily, cfg.Cluster)
	return err
}
