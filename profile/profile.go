// Package profile describes a device variant: its register map, how the
// harness decides a computation has finished, and the timeouts around
// programming and completion.
//
// # File Format
//
// Profiles are TOML, YAML or JSON, chosen by file extension:
//
//	name = "cw305-aes128"
//	program_timeout = "30s"
//	program_attempts = 2
//	await_timeout = "5s"
//
//	[completion]
//	kind = "fixed"
//	delay = "500ms"
//
//	[[registers]]
//	name = "key"
//	address = 0x500
//	width = 16
//	direction = "write"
//
// Omitted settings fall back to the built-in CW305 AES-128 profile. When
// registers are listed they replace the built-in map entirely.
package profile

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anchorageoss/fpga-aes-harness/device"
)

// Completion kinds accepted in profile files.
const (
	CompletionFixed = "fixed"
	CompletionPoll  = "poll"
)

// DefaultName is the name of the built-in profile.
const DefaultName = "cw305-aes128"

// DefaultAwaitTimeout bounds AwaitCompletion for the built-in profile.
const DefaultAwaitTimeout = 5 * time.Second

// Profile is a fully resolved device profile
type Profile struct {
	Name            string
	Registers       device.RegisterMap
	Completion      device.CompletionStrategy
	ProgramTimeout  time.Duration
	ProgramAttempts int
	AwaitTimeout    time.Duration
}

// Default returns the CW305 AES-128 profile used by the reference demo:
// fixed 500ms settle time, one programming attempt.
func Default() Profile {
	return Profile{
		Name:            DefaultName,
		Registers:       device.CW305AES128(),
		Completion:      device.FixedDelay{Delay: device.DefaultCompletionDelay},
		ProgramTimeout:  device.DefaultProgramTimeout,
		ProgramAttempts: device.DefaultProgramAttempts,
		AwaitTimeout:    DefaultAwaitTimeout,
	}
}

// SessionConfig converts the profile into a device.Config
func (p Profile) SessionConfig(log *logrus.Entry) device.Config {
	return device.Config{
		Registers:       p.Registers,
		Completion:      p.Completion,
		ProgramTimeout:  p.ProgramTimeout,
		ProgramAttempts: p.ProgramAttempts,
		Logger:          log,
	}
}

// Register returns the named register or an error
func (p Profile) Register(name string) (device.Register, error) {
	r, err := p.Registers.Get(name)
	if err != nil {
		return device.Register{}, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return r, nil
}
