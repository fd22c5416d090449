// Package harness runs a block operation end to end against a
// register-mapped accelerator.
//
// The run mirrors what a bench engineer does by hand with a CW305:
//   - connect to the board and load the bitstream
//   - write key and plaintext, reversed into little-endian placement
//   - fire the trigger and wait for the completion strategy
//   - read the ciphertext back and reverse it
//   - disconnect, on every path
//
// # Running
//
//	svc := harness.NewService(openTransport, log)
//	result, err := svc.Encrypt(ctx, &harness.EncryptRequest{
//		BitstreamPath: "cw305_top.bit",
//		Key:           key,
//		Plaintext:     plaintext,
//	})
//
// Key, Plaintext, Expected and the returned Ciphertext are all
// most-significant byte first. The service handles the placement
// conversion; callers never see register byte order.
package harness

import (
	"errors"
	"time"

	"github.com/anchorageoss/fpga-aes-harness/bitstream"
	"github.com/anchorageoss/fpga-aes-harness/profile"
)

// ErrCiphertextMismatch is returned when the device result differs from
// EncryptRequest.Expected.
var ErrCiphertextMismatch = errors.New("ciphertext mismatch")

// EncryptRequest represents the parameters of one run
type EncryptRequest struct {
	BitstreamPath string
	Key           []byte
	Plaintext     []byte
	// Expected, when set, is compared against the ciphertext.
	Expected []byte
	// Profile defaults to profile.Default() when its register map is empty.
	Profile profile.Profile
	// TransportName is recorded in the transcript.
	TransportName string
	// SaveTranscriptPath writes a Borsh transcript when set.
	SaveTranscriptPath string
}

// EncryptResult represents the outcome of one run
type EncryptResult struct {
	SessionID      string         `json:"sessionId"`
	Profile        string         `json:"profile"`
	Transport      string         `json:"transport,omitempty"`
	Completion     string         `json:"completion"`
	Key            []byte         `json:"-"`
	Plaintext      []byte         `json:"-"`
	Ciphertext     []byte         `json:"-"`
	Expected       []byte         `json:"-"`
	Verified       bool           `json:"verified"`
	Bitstream      bitstream.Info `json:"bitstream"`
	Started        time.Time      `json:"started"`
	Elapsed        time.Duration  `json:"-"`
	TranscriptPath string         `json:"transcriptPath,omitempty"`
	TranscriptHash string         `json:"transcriptHash,omitempty"`
}
