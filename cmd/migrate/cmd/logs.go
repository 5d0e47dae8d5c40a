package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs <task-arn>",
	Short: "Print the last log lines of a migration task",
	Args:  cobra.ExactArgs(1),
	RunE:  logsRun,
}

func init() {
	flags := logsCmd.Flags()
	flags.Int32("lines", 0, "Number of lines to print (defaults to tail_lines)")

	if err := settings.BindPFlag("tail_lines", flags.Lookup("lines")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(logsCmd)
}

func logsRun(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		return err
	}

	clients, err := newAWSClients(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create aws clients: %w", err)
	}

	return printLogs(cmd.Context(), cfg, clients, args[0], cmd.OutOrStdout())
}

func printLogs(ctx context.Context, cfg *Config, clients *awsClients, taskArn string, out io.Writer) error {
	if cfg.LogGroup == "" {
		return errors.New("a log group is required, set --log-group or log_group")
	}

	lines, err := newTailer(cfg, clients).Tail(ctx, taskArn)
	if err != nil {
		return err
	}

	if len(lines) == 0 {
		logger.Warn("no log events found", "task", taskArn, "group", cfg.LogGroup)
		return nil
	}

	for _, line := range lines {
		if _, err = fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
