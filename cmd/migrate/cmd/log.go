package cmd

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// slogLog lets the orchestrator, which logs through pulumi.Log, write to a slog logger.
type slogLog struct {
	logger *slog.Logger
}

var _ pulumi.Log = slogLog{}

func (l slogLog) Debug(msg string, args *pulumi.LogArgs) error {
	l.logger.Debug(msg, attrs(args)...)
	return nil
}

func (l slogLog) Info(msg string, args *pulumi.LogArgs) error {
	l.logger.Info(msg, attrs(args)...)
	return nil
}

func (l slogLog) Warn(msg string, args *pulumi.LogArgs) error {
	l.logger.Warn(msg, attrs(args)...)
	return nil
}

func (l slogLog) Error(msg string, args *pulumi.LogArgs) error {
	l.logger.Error(msg, attrs(args)...)
	return nil
}

func attrs(args *pulumi.LogArgs) []any {
	if args == nil || args.StreamID == 0 {
		return nil
	}
	return []any{"stream", args.StreamID}
}
