package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// LogLevelEnv overrides the default log level
const LogLevelEnv = "HARNESS_LOG_LEVEL"

// LogLevelFlag is the global --log-level flag
func LogLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (trace, debug, info, warn, error)",
		Value:   "warn",
		Sources: cli.EnvVars(LogLevelEnv),
	}
}

// SetupLogging configures the standard logrus logger from --log-level.
// Logs go to stderr so stdout stays machine-readable.
func SetupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, err := logrus.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return ctx, fmt.Errorf("invalid --log-level: %w", err)
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return ctx, nil
}

func logger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}
