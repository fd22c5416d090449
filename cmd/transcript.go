package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/anchorageoss/fpga-aes-harness/harness"
	"github.com/anchorageoss/fpga-aes-harness/transcript"
)

// DecodeTranscriptCommand creates the decode-transcript command
func DecodeTranscriptCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode-transcript",
		Usage: "Decode a transcript saved by encrypt --save-transcript",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Path to transcript binary file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output in JSON format",
			},
		},
		Action: runDecodeTranscriptCommand,
	}
}

func runDecodeTranscriptCommand(ctx context.Context, cmd *cli.Command) error {
	tr, raw, err := transcript.Load(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("failed to decode transcript: %w", err)
	}
	hash := transcript.ComputeHash(raw)

	if cmd.Bool("json") {
		jsonBytes, err := json.MarshalIndent(map[string]interface{}{
			"hash":       hash,
			"transcript": tr,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}

	fmt.Print(harness.NewFormatter().FormatTranscript(tr, hash))
	return nil
}
