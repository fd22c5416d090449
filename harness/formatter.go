package harness

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/anchorageoss/fpga-aes-harness/device"
	"github.com/anchorageoss/fpga-aes-harness/profile"
	"github.com/anchorageoss/fpga-aes-harness/transcript"
)

// Formatter formats run results, profiles and transcripts for display
type Formatter struct{}

// NewFormatter creates a new formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatHexPairs renders bytes as space-separated uppercase hex pairs,
// e.g. "69 C4 E0 D8".
func FormatHexPairs(b []byte) string {
	pairs := lo.Map(b, func(v byte, _ int) string {
		return fmt.Sprintf("%02X", v)
	})
	return strings.Join(pairs, " ")
}

// ParseHex decodes an operand given as hex. Whitespace, colons and a
// leading 0x are ignored, so "00 11 22", "00:11:22" and "0x001122" all
// decode to the same bytes.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("empty hex value")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	return b, nil
}

// FormatResult formats a run as the three-line operand report
func (f *Formatter) FormatResult(r *EncryptResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("plain:  %s\n", FormatHexPairs(r.Plaintext)))
	sb.WriteString(fmt.Sprintf("key:    %s\n", FormatHexPairs(r.Key)))
	sb.WriteString(fmt.Sprintf("cipher: %s\n", FormatHexPairs(r.Ciphertext)))
	return sb.String()
}

// FormatResultJSON formats a run for JSON output
func (f *Formatter) FormatResultJSON(r *EncryptResult) map[string]interface{} {
	out := map[string]interface{}{
		"sessionId":  r.SessionID,
		"profile":    r.Profile,
		"completion": r.Completion,
		"key":        upperHex(r.Key),
		"plaintext":  upperHex(r.Plaintext),
		"ciphertext": upperHex(r.Ciphertext),
		"started":    r.Started.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"elapsed":    r.Elapsed.String(),
	}
	if r.Transport != "" {
		out["transport"] = r.Transport
	}
	if r.Bitstream.SHA256 != "" {
		out["bitstream"] = r.Bitstream
	}
	if len(r.Expected) > 0 {
		out["expected"] = upperHex(r.Expected)
		out["verified"] = r.Verified
	}
	if r.TranscriptPath != "" {
		out["transcript"] = map[string]interface{}{
			"path": r.TranscriptPath,
			"hash": r.TranscriptHash,
		}
	}
	return out
}

// FormatProfile formats a profile for display
func (f *Formatter) FormatProfile(p profile.Profile) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Profile: %s\n", p.Name))
	sb.WriteString(fmt.Sprintf("  Completion:       %s\n", p.Completion))
	sb.WriteString(fmt.Sprintf("  Program timeout:  %s\n", p.ProgramTimeout))
	sb.WriteString(fmt.Sprintf("  Program attempts: %d\n", p.ProgramAttempts))
	sb.WriteString(fmt.Sprintf("  Await timeout:    %s\n", formatTimeout(p.AwaitTimeout)))
	sb.WriteString("  Registers:\n")
	for _, r := range p.Registers.Registers() {
		sb.WriteString(fmt.Sprintf("    %-12s 0x%03X  %3d bytes  %s\n", r.Name, r.Address, r.Width, r.Direction))
	}
	return sb.String()
}

// FormatProfileJSON formats a profile for JSON output
func (f *Formatter) FormatProfileJSON(p profile.Profile) map[string]interface{} {
	regs := lo.Map(p.Registers.Registers(), func(r device.Register, _ int) map[string]interface{} {
		return map[string]interface{}{
			"name":      r.Name,
			"address":   fmt.Sprintf("0x%03X", r.Address),
			"width":     r.Width,
			"direction": r.Direction.String(),
		}
	})
	return map[string]interface{}{
		"name":            p.Name,
		"completion":      p.Completion.String(),
		"programTimeout":  p.ProgramTimeout.String(),
		"programAttempts": p.ProgramAttempts,
		"awaitTimeout":    formatTimeout(p.AwaitTimeout),
		"registers":       regs,
	}
}

// FormatTranscript formats a decoded transcript for display
func (f *Formatter) FormatTranscript(t *transcript.Transcript, hash string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Transcript v%d (%s)\n", t.Version, hash))
	sb.WriteString(fmt.Sprintf("  Session:    %s\n", t.SessionID))
	sb.WriteString(fmt.Sprintf("  Profile:    %s\n", t.Profile))
	if t.Transport != "" {
		sb.WriteString(fmt.Sprintf("  Transport:  %s\n", t.Transport))
	}
	sb.WriteString(fmt.Sprintf("  Completion: %s\n", t.Completion))
	if t.BitstreamDesign != "" {
		sb.WriteString(fmt.Sprintf("  Bitstream:  %s\n", t.BitstreamDesign))
	}
	sb.WriteString(fmt.Sprintf("  SHA256:     %s\n", hex.EncodeToString(t.BitstreamSHA256[:])))
	sb.WriteString(fmt.Sprintf("  Started:    %s\n", t.Started().Format("2006-01-02T15:04:05.000Z07:00")))
	sb.WriteString(fmt.Sprintf("  Elapsed:    %s\n", t.Elapsed()))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("plain:  %s\n", FormatHexPairs(t.Plaintext)))
	sb.WriteString(fmt.Sprintf("key:    %s\n", FormatHexPairs(t.Key)))
	sb.WriteString(fmt.Sprintf("cipher: %s\n", FormatHexPairs(t.Ciphertext)))
	return sb.String()
}

func formatTimeout(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
