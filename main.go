package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/anchorageoss/fpga-aes-harness/cmd"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "fpga-aes-harness",
		Usage:  "Drive an AES-128 core on a CW305 FPGA target",
		Flags:  []cli.Flag{cmd.LogLevelFlag()},
		Before: cmd.SetupLogging,
		Commands: []*cli.Command{
			cmd.EncryptCommand(),
			cmd.DecodeTranscriptCommand(),
			cmd.ProfileCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, cmd.Describe(err))
		stop()
		os.Exit(cmd.ExitCode(err))
	}
}
