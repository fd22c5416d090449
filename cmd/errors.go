package cmd

import (
	"errors"
	"fmt"

	"github.com/anchorageoss/fpga-aes-harness/device"
	"github.com/anchorageoss/fpga-aes-harness/harness"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConnect     = 2
	ExitProgram     = 3
	ExitWrite       = 4
	ExitTrigger     = 5
	ExitTimeout     = 6
	ExitRead        = 7
	ExitMismatch    = 8
	ExitInterrupted = 130
)

var exitCodes = map[device.Op]int{
	device.OpConnect: ExitConnect,
	device.OpProgram: ExitProgram,
	device.OpWrite:   ExitWrite,
	device.OpTrigger: ExitTrigger,
	device.OpAwait:   ExitTimeout,
	device.OpRead:    ExitRead,
}

// ExitCode maps an error returned by a command to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, device.ErrCanceled) {
		return ExitInterrupted
	}
	if errors.Is(err, harness.ErrCiphertextMismatch) {
		return ExitMismatch
	}
	if de, ok := device.AsError(err); ok {
		if code, ok := exitCodes[de.Op]; ok {
			return code
		}
	}
	return ExitFailure
}

// Describe renders err as "<Category>: <cause>" for the terminal
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, harness.ErrCiphertextMismatch) {
		return fmt.Sprintf("MismatchError: %v", err)
	}
	if de, ok := device.AsError(err); ok {
		if de.Register != "" {
			return fmt.Sprintf("%s: %s: %v", de.Category(), de.Register, de.Err)
		}
		return fmt.Sprintf("%s: %v", de.Category(), de.Err)
	}
	return fmt.Sprintf("Error: %v", err)
}
