package cw305

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/anchorageoss/fpga-aes-harness/bitstream"
	"github.com/anchorageoss/fpga-aes-harness/device"
)

func writeBitstream(t *testing.T, compress bool) string {
	t.Helper()
	raw := bitstream.Encode("cw305_top", "7a100tftg256", "2018/03/14", "10:21:07", []byte{0xAA, 0x99, 0x55, 0x66})
	name := "cw305_top.bit"
	if compress {
		var err error
		raw, err = bitstream.Compress(raw)
		require.NoError(t, err)
		name += ".zst"
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func newSession(t *testing.T, l *Link, completion device.CompletionStrategy, regs device.RegisterMap) *device.Session {
	t.Helper()
	log := logrus.New()
	log.Out = io.Discard
	if regs.Len() == 0 {
		regs = device.CW305AES128()
	}
	s, err := device.NewSession(l, device.Config{
		Registers:  regs,
		Completion: completion,
		Logger:     logrus.NewEntry(log),
	})
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// encrypt runs one block through s and returns the conventional-order result.
func encrypt(t *testing.T, s *device.Session, key, pt []byte, timeout time.Duration) []byte {
	t.Helper()
	ctx := context.Background()
	regs := s.Registers()
	k, _ := regs.Lookup(device.RegKey)
	p, _ := regs.Lookup(device.RegPlaintext)
	c, _ := regs.Lookup(device.RegCiphertext)

	require.NoError(t, s.WriteOperand(ctx, k, device.ToLittleEndianPlacement(key)))
	require.NoError(t, s.WriteOperand(ctx, p, device.ToLittleEndianPlacement(pt)))
	require.NoError(t, s.Trigger(ctx))
	require.NoError(t, s.AwaitCompletion(ctx, timeout))
	raw, err := s.ReadResult(ctx, c)
	require.NoError(t, err)
	return device.FromLittleEndianPlacement(raw)
}

func TestBoard_ReferenceVector(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "zstd"}[compressed], func(t *testing.T) {
			board, err := NewBoard(Options{Latency: time.Millisecond, ProgramDelay: time.Millisecond})
			require.NoError(t, err)
			link := board.Link()
			s := newSession(t, link, device.FixedDelay{Delay: 10 * time.Millisecond}, device.RegisterMap{})
			defer s.Disconnect()

			_, ok := link.Bitstream()
			require.False(t, ok)

			ctx := context.Background()
			require.NoError(t, s.Connect(ctx))
			require.NoError(t, s.Program(ctx, writeBitstream(t, compressed)))

			ct := encrypt(t, s,
				decode(t, "000102030405060708090a0b0c0d0e0f"),
				decode(t, "00112233445566778899aabbccddeeff"),
				time.Second)
			require.Equal(t, "69C4E0D86A7B0430D8CDB78070B4C55A", strings.ToUpper(hex.EncodeToString(ct)))

			info := board.Info()
			require.True(t, info.Configured)
			require.Equal(t, "7a100tftg256", info.Bitstream.Part)

			loaded, ok := link.Bitstream()
			require.True(t, ok)
			require.Equal(t, "cw305_top", loaded.Design)
			require.Equal(t, info.Bitstream.SHA256, loaded.SHA256)
			require.Equal(t, compressed, info.Bitstream.Compressed)
			require.Equal(t, 1, info.Triggers)
		})
	}
}

func TestBoard_Busy(t *testing.T) {
	board, err := NewBoard(Options{})
	require.NoError(t, err)
	ctx := context.Background()

	first := newSession(t, board.Link(), nil, device.RegisterMap{})
	require.NoError(t, first.Connect(ctx))

	second := newSession(t, board.Link(), nil, device.RegisterMap{})
	err = second.Connect(ctx)
	require.ErrorIs(t, err, device.ErrBusy)
	require.Equal(t, device.StateDisconnected, second.State())
	require.NoError(t, second.Disconnect())

	// Releasing the first session frees the board.
	require.NoError(t, first.Disconnect())
	require.NoError(t, second.Connect(ctx))
	require.NoError(t, second.Disconnect())
}

func TestBoard_Unplugged(t *testing.T) {
	board, err := NewBoard(Options{Serial: "50203220304e3a3332"})
	require.NoError(t, err)
	board.Unplug()

	s := newSession(t, board.Link(), nil, device.RegisterMap{})
	err = s.Connect(context.Background())
	require.ErrorIs(t, err, device.ErrDeviceNotFound)
	require.Contains(t, err.Error(), "50203220304e3a3332")

	board.Plug()
	require.NoError(t, s.Connect(context.Background()))
}

func TestBoard_ProgramErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing bitstream", func(t *testing.T) {
		board, _ := NewBoard(Options{})
		l := board.Link()
		require.NoError(t, l.Connect(ctx))

		err := l.Program(ctx, filepath.Join(t.TempDir(), "missing.bit"))
		require.ErrorIs(t, err, device.ErrFileNotFound)
	})

	t.Run("slow programming honors context", func(t *testing.T) {
		board, _ := NewBoard(Options{ProgramDelay: time.Minute})
		l := board.Link()
		require.NoError(t, l.Connect(ctx))

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		err := l.Program(cctx, writeBitstream(t, false))
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, board.Info().Configured)
	})

	t.Run("session maps slow programming to timeout", func(t *testing.T) {
		board, _ := NewBoard(Options{ProgramDelay: time.Minute})
		log := logrus.New()
		log.Out = io.Discard
		s, err := device.NewSession(board.Link(), device.Config{
			Registers:      device.CW305AES128(),
			ProgramTimeout: 10 * time.Millisecond,
			Logger:         logrus.NewEntry(log),
		})
		require.NoError(t, err)
		require.NoError(t, s.Connect(ctx))

		err = s.Program(ctx, writeBitstream(t, false))
		require.ErrorIs(t, err, device.ErrTimeout)
	})
}

func TestBoard_UnconfiguredAccess(t *testing.T) {
	board, _ := NewBoard(Options{})
	l := board.Link()
	ctx := context.Background()

	require.Error(t, l.WriteRegister(ctx, 0x500, make([]byte, 16)), "not connected")
	require.NoError(t, l.Connect(ctx))

	err := l.WriteRegister(ctx, 0x500, make([]byte, 16))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not configured")

	_, err = l.ReadRegister(ctx, 0x200, 16)
	require.Error(t, err)
}

func TestBoard_ShortDelayReadsStaleResult(t *testing.T) {
	board, err := NewBoard(Options{Latency: 300 * time.Millisecond, ProgramDelay: time.Millisecond})
	require.NoError(t, err)
	s := newSession(t, board.Link(), device.FixedDelay{Delay: time.Millisecond}, device.RegisterMap{})
	defer s.Disconnect()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Program(ctx, writeBitstream(t, false)))

	// The fixed delay is far shorter than the core latency: the read
	// succeeds but returns the power-on contents of the result register.
	ct := encrypt(t, s,
		decode(t, "000102030405060708090a0b0c0d0e0f"),
		decode(t, "00112233445566778899aabbccddeeff"),
		time.Second)
	require.Equal(t, make([]byte, 16), ct)
}

func TestBoard_PollDoneFlag(t *testing.T) {
	regs := device.MustRegisterMap(append(device.CW305AES128().Registers(),
		device.Register{Name: device.RegDone, Address: 0x450, Width: 1, Direction: device.DirectionRead})...)
	done, _ := regs.Lookup(device.RegDone)

	board, err := NewBoard(Options{Registers: regs, Latency: 30 * time.Millisecond, ProgramDelay: time.Millisecond})
	require.NoError(t, err)
	s := newSession(t, board.Link(), device.PollFlag{Register: done, Interval: time.Millisecond}, regs)
	defer s.Disconnect()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Program(ctx, writeBitstream(t, false)))

	ct := encrypt(t, s,
		decode(t, "000102030405060708090a0b0c0d0e0f"),
		decode(t, "00112233445566778899aabbccddeeff"),
		time.Second)
	require.Equal(t, "69c4e0d86a7b0430d8cdb78070b4c55a", hex.EncodeToString(ct))
}

func TestBoard_CustomCore(t *testing.T) {
	// An identity core makes byte placement directly observable.
	board, err := NewBoard(Options{
		Core:         CoreFunc(func(key, block []byte) ([]byte, error) { return block, nil }),
		Latency:      time.Millisecond,
		ProgramDelay: time.Millisecond,
	})
	require.NoError(t, err)
	l := board.Link()
	ctx := context.Background()
	require.NoError(t, l.Connect(ctx))
	require.NoError(t, l.Program(ctx, writeBitstream(t, false)))

	pt := decode(t, "00112233445566778899aabbccddeeff")
	require.NoError(t, l.WriteRegister(ctx, 0x600, device.ToLittleEndianPlacement(pt)))
	require.NoError(t, l.WriteRegister(ctx, 0x440, []byte{1}))
	time.Sleep(5 * time.Millisecond)

	raw, err := l.ReadRegister(ctx, 0x200, 16)
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), raw[0], "lowest address holds the least significant byte")
	require.Equal(t, pt, device.FromLittleEndianPlacement(raw))
}

func TestBoard_CoreError(t *testing.T) {
	board, _ := NewBoard(Options{
		Core:         CoreFunc(func(key, block []byte) ([]byte, error) { return nil, errors.New("core fault") }),
		ProgramDelay: time.Millisecond,
	})
	l := board.Link()
	ctx := context.Background()
	require.NoError(t, l.Connect(ctx))
	require.NoError(t, l.Program(ctx, writeBitstream(t, false)))

	err := l.WriteRegister(ctx, 0x440, []byte{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "core fault")
}

func TestNewBoard_InvalidRegisters(t *testing.T) {
	regs := device.MustRegisterMap(
		device.Register{Name: "k", Address: 0x500, Width: 16, Direction: device.DirectionWrite},
		device.Register{Name: device.RegTrigger, Address: 0x440, Width: 1, Direction: device.DirectionTrigger},
		device.Register{Name: device.RegCiphertext, Address: 0x200, Width: 16, Direction: device.DirectionRead},
	)
	_, err := NewBoard(Options{Registers: regs})
	require.ErrorIs(t, err, device.ErrUnknownRegister)
}

func TestLink_CloseIdempotent(t *testing.T) {
	board, _ := NewBoard(Options{})
	l := board.Link()
	require.NoError(t, l.Close())
	require.NoError(t, l.Connect(context.Background()))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.NoError(t, board.Link().Connect(context.Background()))
}
