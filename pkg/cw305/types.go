package cw305

import (
	"crypto/aes"
	"fmt"
	"time"

	"github.com/anchorageoss/fpga-aes-harness/bitstream"
	"github.com/anchorageoss/fpga-aes-harness/device"
)

// Core is the block function realized by the simulated bitstream. Key and
// block arrive most-significant byte first.
type Core interface {
	Encrypt(key, block []byte) ([]byte, error)
	Name() string
}

// AESCore behaves like the CW305 AES-128 reference design
type AESCore struct{}

func (AESCore) Encrypt(key, block []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("block must be %d bytes, got %d", aes.BlockSize, len(block))
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out, nil
}

func (AESCore) Name() string { return "aes-128" }

// CoreFunc adapts a function to Core
type CoreFunc func(key, block []byte) ([]byte, error)

func (f CoreFunc) Encrypt(key, block []byte) ([]byte, error) { return f(key, block) }

func (CoreFunc) Name() string { return "custom" }

// Default timing of the simulated board.
const (
	DefaultLatency      = 2 * time.Millisecond
	DefaultProgramDelay = 50 * time.Millisecond
)

// Options configures a simulated board
type Options struct {
	// Serial identifies the board in errors and BoardInfo
	Serial string
	// Registers must contain key, plaintext, trigger and ciphertext
	// registers. A read register named "done" is driven as a completion
	// flag when present. Defaults to device.CW305AES128().
	Registers device.RegisterMap
	// Core computes the result. Defaults to AESCore.
	Core Core
	// Latency is the time from trigger until the result register updates.
	Latency time.Duration
	// ProgramDelay is how long configuration takes.
	ProgramDelay time.Duration
}

// BoardInfo describes a simulated board
type BoardInfo struct {
	Serial     string          `json:"serial"`
	Core       string          `json:"core"`
	Configured bool            `json:"configured"`
	Bitstream  *bitstream.Info `json:"bitstream,omitempty"`
	Triggers   int             `json:"triggers"`
}
