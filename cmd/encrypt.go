package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/anchorageoss/fpga-aes-harness/harness"
	"github.com/anchorageoss/fpga-aes-harness/pkg/cw305"
	"github.com/anchorageoss/fpga-aes-harness/profile"
)

// Operands of the FIPS-197 Appendix C.1 example, used when --key or
// --plaintext is omitted.
const (
	DefaultKeyHex       = "000102030405060708090A0B0C0D0E0F"
	DefaultPlaintextHex = "00112233445566778899AABBCCDDEEFF"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
)

// EncryptCommand creates the encrypt command
func EncryptCommand() *cli.Command {
	return &cli.Command{
		Name:  "encrypt",
		Usage: "Program the FPGA and encrypt one block",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bitstream",
				Usage:    "Path to the FPGA bitstream (.bit, optionally zstd-compressed)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "AES-128 key as hex, most significant byte first",
				Value: DefaultKeyHex,
			},
			&cli.StringFlag{
				Name:  "plaintext",
				Usage: "Plaintext block as hex, most significant byte first",
				Value: DefaultPlaintextHex,
			},
			&cli.StringFlag{
				Name:  "expect",
				Usage: "Expected ciphertext as hex; the run fails if the device disagrees",
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "Device profile file (.toml, .yaml, .json); defaults to the built-in CW305 AES-128 profile",
				Sources: cli.EnvVars("HARNESS_PROFILE"),
			},
			&cli.StringFlag{
				Name:  "save-transcript",
				Usage: "Save a binary transcript of the run to the specified path",
			},
			&cli.StringFlag{
				Name:    "transport",
				Usage:   fmt.Sprintf("Device transport (%s)", strings.Join(Transports(), ", ")),
				Value:   TransportSim,
				Sources: cli.EnvVars("HARNESS_TRANSPORT"),
			},
			&cli.DurationFlag{
				Name:  "sim-latency",
				Usage: "Simulated core latency from trigger to result",
				Value: cw305.DefaultLatency,
			},
			&cli.DurationFlag{
				Name:  "sim-program-delay",
				Usage: "Simulated bitstream load time",
				Value: cw305.DefaultProgramDelay,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output in JSON format",
			},
		},
		Action: runEncryptCommand,
	}
}

func runEncryptCommand(ctx context.Context, cmd *cli.Command) error {
	bitstreamPath := cmd.String("bitstream")
	profilePath := cmd.String("profile")
	transportName := cmd.String("transport")
	asJSON := cmd.Bool("json")

	key, err := harness.ParseHex(cmd.String("key"))
	if err != nil {
		return fmt.Errorf("invalid --key: %w", err)
	}
	plaintext, err := harness.ParseHex(cmd.String("plaintext"))
	if err != nil {
		return fmt.Errorf("invalid --plaintext: %w", err)
	}
	var expected []byte
	if s := cmd.String("expect"); s != "" {
		if expected, err = harness.ParseHex(s); err != nil {
			return fmt.Errorf("invalid --expect: %w", err)
		}
	}

	p, err := loadProfile(profilePath)
	if err != nil {
		return err
	}

	factory := newTransportFactory(transportName, cw305.Options{
		Latency:      cmd.Duration("sim-latency"),
		ProgramDelay: cmd.Duration("sim-program-delay"),
	})
	service := harness.NewService(factory, logger())

	result, err := service.Encrypt(ctx, &harness.EncryptRequest{
		BitstreamPath:      bitstreamPath,
		Key:                key,
		Plaintext:          plaintext,
		Expected:           expected,
		Profile:            p,
		TransportName:      transportName,
		SaveTranscriptPath: cmd.String("save-transcript"),
	})
	if result == nil {
		return err
	}
	mismatch := errors.Is(err, harness.ErrCiphertextMismatch)
	if err != nil && !mismatch {
		return err
	}

	// Print to stderr for logging
	fmt.Fprintf(os.Stderr, "\n=== Run %s ===\n", result.SessionID)
	okColor.Fprintf(os.Stderr, "✓ Connected via %s\n", transportName)
	if result.Bitstream.Design != "" {
		okColor.Fprintf(os.Stderr, "✓ Programmed %s (%s, %d bytes)\n", result.Bitstream.Design, result.Bitstream.Part, result.Bitstream.Length)
	} else {
		okColor.Fprintf(os.Stderr, "✓ Programmed %s\n", bitstreamPath)
	}
	okColor.Fprintf(os.Stderr, "✓ Completed using %s in %s\n", result.Completion, result.Elapsed)
	if result.TranscriptPath != "" {
		okColor.Fprintf(os.Stderr, "✓ Transcript saved to %s (%s)\n", result.TranscriptPath, result.TranscriptHash)
	}
	switch {
	case mismatch:
		failColor.Fprintf(os.Stderr, "✗ Ciphertext does not match --expect\n")
	case result.Verified:
		okColor.Fprintf(os.Stderr, "✓ Ciphertext matches --expect\n")
	}
	fmt.Fprintln(os.Stderr)

	formatter := harness.NewFormatter()
	if asJSON {
		jsonBytes, jerr := json.MarshalIndent(formatter.FormatResultJSON(result), "", "  ")
		if jerr != nil {
			return fmt.Errorf("failed to marshal output: %w", jerr)
		}
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Print(formatter.FormatResult(result))
	}

	return err
}

func loadProfile(path string) (profile.Profile, error) {
	if path == "" {
		return profile.Default(), nil
	}
	return profile.Load(path)
}
