package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration"
)

type ctxKey string

const configCtxKey ctxKey = "config"

var (
	configFile    string
	debug         bool
	timeout       string
	timeoutCancel context.CancelFunc

	settings = newViper()
	logger   = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Run and inspect the Pulumi Service database migration task",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger = newLogger(cmd.ErrOrStderr(), debug)

		cfg, err := loadConfig(settings, configFile)
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), configCtxKey, cfg))

		timeoutDuration, err := parseTimeout(timeout)
		if err != nil {
			return fmt.Errorf("error parsing timeout: %w", err)
		}
		if timeoutDuration == 0 {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeoutDuration)
		timeoutCancel = cancel // released in Execute
		cmd.SetContext(ctx)

		logger.Debug("timeout set", "timeout", timeoutDuration)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if timeoutCancel != nil {
		timeoutCancel()
	}

	if err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flags.StringVar(&timeout, "timeout", "0", "Overall timeout (e.g., 45m, 2h, 600); 0 relies on the poll limits")
	flags.BoolVar(&debug, "debug", false, "Enable debugging logs")
	flags.String("region", "", "AWS region of the ECS cluster")
	flags.String("profile", "", "AWS shared config profile")
	flags.String("cluster", "", "ECS cluster name or arn")
	flags.String("log-group", "", "CloudWatch log group of the migration container")

	for _, name := range []string{"region", "profile", "cluster", "log-group"} {
		if err := settings.BindPFlag(flagKey(name), flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// exitCode lets scripts tell a busy cluster or a timeout apart from a failed migration.
func exitCode(err error) int {
	var concurrent *migration.ConcurrentMigrationError
	var waitTimeout *migration.WaitTimeoutError

	switch {
	case errors.As(err, &concurrent):
		return 2
	case errors.As(err, &waitTimeout), errors.Is(err, context.DeadlineExceeded):
		return 3
	}
	return 1
}

// parseTimeout accepts a duration ("45m") or a number of seconds ("600"). Zero in
// either form means no timeout.
func parseTimeout(timeoutStr string) (time.Duration, error) {
	duration, err := time.ParseDuration(timeoutStr)
	if err != nil {
		seconds, atoiErr := strconv.Atoi(timeoutStr)
		if atoiErr != nil {
			return 0, fmt.Errorf("invalid timeout format: %s (use duration like '45m' or seconds like '600')", timeoutStr)
		}
		duration = time.Duration(seconds) * time.Second
	}

	if duration < 0 {
		return 0, fmt.Errorf("timeout cannot be negative: %s", timeoutStr)
	}
	return duration, nil
}

// flagKey maps a flag name to its config key, eg lock-table to lock_table.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func getConfigFromContext(cmd *cobra.Command) (*Config, error) {
	cfg, ok := cmd.Context().Value(configCtxKey).(*Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("config not found in context")
	}
	return cfg, nil
}

// RootCmd returns the root command for use by tools like doc generators.
func RootCmd() *cobra.Command {
	return rootCmd
}
