package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/anchorageoss/fpga-aes-harness/harness"
)

// ProfileCommand creates the profile commands
func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Inspect device profiles",
		Commands: []*cli.Command{
			showProfileCommand(),
		},
	}
}

func showProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show the resolved profile (built-in CW305 AES-128 when --profile is omitted)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "Device profile file (.toml, .yaml, .json)",
				Sources: cli.EnvVars("HARNESS_PROFILE"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output in JSON format",
			},
		},
		Action: runShowProfileCommand,
	}
}

func runShowProfileCommand(ctx context.Context, cmd *cli.Command) error {
	p, err := loadProfile(cmd.String("profile"))
	if err != nil {
		return err
	}

	formatter := harness.NewFormatter()
	if cmd.Bool("json") {
		jsonBytes, err := json.MarshalIndent(formatter.FormatProfileJSON(p), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}

	fmt.Print(formatter.FormatProfile(p))
	return nil
}
