package harness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anchorageoss/fpga-aes-harness/device"
	"github.com/anchorageoss/fpga-aes-harness/profile"
	"github.com/anchorageoss/fpga-aes-harness/transcript"
)

func TestNewFormatter(t *testing.T) {
	formatter := NewFormatter()
	require.NotNil(t, formatter)
}

func TestFormatHexPairs(t *testing.T) {
	require.Equal(t, "69 C4 E0 D8 6A 7B 04 30 D8 CD B7 80 70 B4 C5 5A", FormatHexPairs(fipsCiphertext))
	require.Equal(t, "0A", FormatHexPairs([]byte{0x0a}))
	require.Equal(t, "", FormatHexPairs(nil))
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "packed", input: "000102", want: []byte{0x00, 0x01, 0x02}},
		{name: "spaced", input: "00 01 02", want: []byte{0x00, 0x01, 0x02}},
		{name: "colons", input: "00:01:02", want: []byte{0x00, 0x01, 0x02}},
		{name: "prefixed upper", input: "0xABCDEF", want: []byte{0xab, 0xcd, 0xef}},
		{name: "surrounding space", input: "  ff \n", want: []byte{0xff}},
		{name: "empty", input: "  ", wantErr: true},
		{name: "odd length", input: "abc", wantErr: true},
		{name: "not hex", input: "zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFormatResult(t *testing.T) {
	formatter := NewFormatter()
	out := formatter.FormatResult(&EncryptResult{
		Key:        fipsKey,
		Plaintext:  fipsPlaintext,
		Ciphertext: fipsCiphertext,
	})

	want := "plain:  00 11 22 33 44 55 66 77 88 99 AA BB CC DD EE FF\n" +
		"key:    00 01 02 03 04 05 06 07 08 09 0A 0B 0C 0D 0E 0F\n" +
		"cipher: 69 C4 E0 D8 6A 7B 04 30 D8 CD B7 80 70 B4 C5 5A\n"
	require.Equal(t, want, out)
}

func TestFormatResultJSON(t *testing.T) {
	formatter := NewFormatter()

	t.Run("minimal", func(t *testing.T) {
		out := formatter.FormatResultJSON(&EncryptResult{
			SessionID:  "s1",
			Profile:    "cw305-aes128",
			Key:        fipsKey,
			Plaintext:  fipsPlaintext,
			Ciphertext: fipsCiphertext,
			Started:    time.Date(2018, 3, 14, 10, 21, 7, 0, time.UTC),
			Elapsed:    512 * time.Millisecond,
		})
		require.Equal(t, "69C4E0D86A7B0430D8CDB78070B4C55A", out["ciphertext"])
		require.Equal(t, "2018-03-14T10:21:07.000Z", out["started"])
		require.Equal(t, "512ms", out["elapsed"])
		require.NotContains(t, out, "expected")
		require.NotContains(t, out, "transcript")

		_, err := json.Marshal(out)
		require.NoError(t, err)
	})

	t.Run("verified with transcript", func(t *testing.T) {
		out := formatter.FormatResultJSON(&EncryptResult{
			Ciphertext:     fipsCiphertext,
			Expected:       fipsCiphertext,
			Verified:       true,
			TranscriptPath: "run.bin",
			TranscriptHash: "abc",
		})
		require.Equal(t, true, out["verified"])
		require.Equal(t, "69C4E0D86A7B0430D8CDB78070B4C55A", out["expected"])
		require.Equal(t, "run.bin", out["transcript"].(map[string]interface{})["path"])
	})
}

func TestFormatProfile(t *testing.T) {
	formatter := NewFormatter()
	p := profile.Default()

	out := formatter.FormatProfile(p)
	require.Contains(t, out, "Profile: cw305-aes128")
	require.Contains(t, out, "fixed-delay(500ms)")
	require.Contains(t, out, "0x500")
	require.Contains(t, out, "0x440")

	p.AwaitTimeout = 0
	require.Contains(t, formatter.FormatProfile(p), "Await timeout:    none")

	js := formatter.FormatProfileJSON(p)
	require.Equal(t, "cw305-aes128", js["name"])
	require.Len(t, js["registers"], device.CW305AES128().Len())
	require.Equal(t, "none", js["awaitTimeout"])
}

func TestFormatTranscript(t *testing.T) {
	formatter := NewFormatter()
	tr := &transcript.Transcript{
		Version:         transcript.Version,
		SessionID:       "s1",
		Profile:         "cw305-aes128",
		Transport:       "cw305-sim",
		Completion:      "fixed-delay(500ms)",
		BitstreamDesign: "cw305_top",
		Key:             fipsKey,
		Plaintext:       fipsPlaintext,
		Ciphertext:      fipsCiphertext,
		StartedUnixMs:   1521022867000,
		ElapsedMicros:   1500,
	}

	out := formatter.FormatTranscript(tr, "deadbeef")
	require.Contains(t, out, "Transcript v1 (deadbeef)")
	require.Contains(t, out, "Transport:  cw305-sim")
	require.Contains(t, out, "Bitstream:  cw305_top")
	require.Contains(t, out, "Started:    2018-03-14T10:21:07.000Z")
	require.Contains(t, out, "Elapsed:    1.5ms")
	require.Contains(t, out, "cipher: 69 C4 E0 D8")
}
