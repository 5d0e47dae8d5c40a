package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/migration"
)

const envPrefix = "PULUMI_MIGRATE"

var validate = validator.New()

// Config holds everything needed to reach the migration task in ECS.
type Config struct {
	Region     string `mapstructure:"region" validate:"required"`
	Profile    string `mapstructure:"profile"`
	Cluster    string `mapstructure:"cluster" validate:"required"`
	TaskFamily string `mapstructure:"task_family" validate:"required"`

	LogGroup      string `mapstructure:"log_group"`
	StreamPrefix  string `mapstructure:"stream_prefix"`
	ContainerName string `mapstructure:"container_name"`
	TailLines     int32  `mapstructure:"tail_lines" validate:"gte=0"`

	// LockTable enables the DynamoDB advisory lock when set.
	LockTable string `mapstructure:"lock_table"`

	RunningPollInterval time.Duration `mapstructure:"running_poll_interval" validate:"gt=0s"`
	RunningMaxAttempts  int           `mapstructure:"running_max_attempts" validate:"gte=0"`
	StoppedPollInterval time.Duration `mapstructure:"stopped_poll_interval" validate:"gt=0s"`
	StoppedMaxAttempts  int           `mapstructure:"stopped_max_attempts" validate:"gte=0"`

	Target RunTarget `mapstructure:",squash" validate:"-"`
}

// RunTarget is only required when launching a task.
type RunTarget struct {
	TaskDefinition string `mapstructure:"task_definition" validate:"required"`
	SecurityGroup  string `mapstructure:"security_group" validate:"required,startswith=sg-"`
	Subnet         string `mapstructure:"subnet" validate:"required,startswith=subnet-"`
}

// RunningPoll returns the policy used while waiting for RUNNING.
func (c *Config) RunningPoll() migration.PollPolicy {
	return migration.PollPolicy{Interval: c.RunningPollInterval, MaxAttempts: c.RunningMaxAttempts}
}

// StoppedPoll returns the policy used while waiting for STOPPED.
func (c *Config) StoppedPoll() migration.PollPolicy {
	return migration.PollPolicy{Interval: c.StoppedPollInterval, MaxAttempts: c.StoppedMaxAttempts}
}

func (c *Config) validateTarget() error {
	if err := validate.Struct(&c.Target); err != nil {
		return fmt.Errorf("run target validation failed: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("task_family", "pulumi-migration-task")
	v.SetDefault("container_name", "pulumi-migration")
	v.SetDefault("stream_prefix", "pulumi-migration")
	v.SetDefault("tail_lines", migration.DefaultTailLines)
	v.SetDefault("running_poll_interval", migration.DefaultRunningPoll.Interval.String())
	v.SetDefault("running_max_attempts", migration.DefaultRunningPoll.MaxAttempts)
	v.SetDefault("stopped_poll_interval", migration.DefaultStoppedPoll.Interval.String())
	v.SetDefault("stopped_max_attempts", migration.DefaultStoppedPoll.MaxAttempts)

	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range []string{"region", "profile", "cluster", "log_group", "lock_table", "task_definition", "security_group", "subnet"} {
		v.SetDefault(key, "")
	}
}

// loadConfig reads the optional YAML file, then environment, then flags already bound to v.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
