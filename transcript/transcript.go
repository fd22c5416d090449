// Package transcript records harness runs as Borsh-encoded binary files.
//
// A transcript captures everything needed to reproduce or audit one block
// operation: the bitstream digest, the profile and transport used, the
// operands and result (most-significant byte first), and timing.
//
// # Writing
//
//	n, hash, err := transcript.Save("run.bin", &transcript.Transcript{...})
//
// # Reading
//
//	tr, raw, err := transcript.Load("run.bin")
//	fmt.Println(transcript.ComputeHash(raw))
//
// Encoding is deterministic: the same transcript always produces the same
// bytes, so its hash can be used to compare runs.
package transcript

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/near/borsh-go"
)

// Version is the current transcript encoding version.
const Version uint8 = 1

// Transcript is one recorded run
type Transcript struct {
	Version         uint8
	SessionID       string
	Profile         string
	Transport       string
	Completion      string
	BitstreamSHA256 [32]byte
	BitstreamDesign string
	Key             []byte
	Plaintext       []byte
	Ciphertext      []byte
	StartedUnixMs   int64
	ElapsedMicros   uint64
}

// Started returns the start time
func (t *Transcript) Started() time.Time {
	return time.UnixMilli(t.StartedUnixMs).UTC()
}

// Elapsed returns the run duration
func (t *Transcript) Elapsed() time.Duration {
	return time.Duration(t.ElapsedMicros) * time.Microsecond
}

// SetBitstreamHash stores a hex-encoded SHA-256 digest
func (t *Transcript) SetBitstreamHash(hexDigest string) error {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return fmt.Errorf("invalid bitstream hash: %w", err)
	}
	if len(raw) != len(t.BitstreamSHA256) {
		return fmt.Errorf("invalid bitstream hash length: expected %d bytes, got %d", len(t.BitstreamSHA256), len(raw))
	}
	copy(t.BitstreamSHA256[:], raw)
	return nil
}

// MarshalJSON renders byte fields as uppercase hex
func (t *Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"version":         t.Version,
		"sessionId":       t.SessionID,
		"profile":         t.Profile,
		"transport":       t.Transport,
		"completion":      t.Completion,
		"bitstreamSha256": hex.EncodeToString(t.BitstreamSHA256[:]),
		"bitstreamDesign": t.BitstreamDesign,
		"key":             upperHex(t.Key),
		"plaintext":       upperHex(t.Plaintext),
		"ciphertext":      upperHex(t.Ciphertext),
		"started":         t.Started().Format(time.RFC3339Nano),
		"elapsed":         t.Elapsed().String(),
	})
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// Encode serializes t with Borsh. Version is filled in when zero.
func Encode(t *Transcript) ([]byte, error) {
	if t.Version == 0 {
		t.Version = Version
	}
	b, err := borsh.Serialize(*t)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transcript: %w", err)
	}
	return b, nil
}

// Decode deserializes a Borsh-encoded transcript
func Decode(b []byte) (*Transcript, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("transcript is empty")
	}
	if b[0] != Version {
		return nil, fmt.Errorf("unsupported transcript version %d (want %d)", b[0], Version)
	}
	var t Transcript
	if err := borsh.Deserialize(&t, b); err != nil {
		return nil, fmt.Errorf("failed to deserialize transcript: %w", err)
	}
	return &t, nil
}

// Save encodes t and writes it to path. It returns the number of bytes
// written and the hash of the encoding.
func Save(path string, t *Transcript) (int, string, error) {
	b, err := Encode(t)
	if err != nil {
		return 0, "", err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return 0, "", fmt.Errorf("failed to save transcript: %w", err)
	}
	return len(b), ComputeHash(b), nil
}

// Load reads and decodes a transcript file, returning the raw bytes too
func Load(path string) (*Transcript, []byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	t, err := Decode(b)
	if err != nil {
		return nil, nil, err
	}
	return t, b, nil
}
