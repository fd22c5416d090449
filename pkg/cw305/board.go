// Package cw305 simulates a NewAE CW305 FPGA target running the AES-128
// reference bitstream, so the harness can be exercised without hardware.
//
// The board keeps a byte-addressed register file. Operands are read from it
// in little-endian placement exactly as the real USB interface stores them,
// and the result is published only after the configured latency. Reading
// early returns whatever the result register held before, which is the
// failure mode a too-short fixed completion delay hits on real hardware.
package cw305

import (
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/anchorageoss/fpga-aes-harness/bitstream"
	"github.com/anchorageoss/fpga-aes-harness/device"
)

// Board is one simulated CW305. Only one Link may hold it at a time.
type Board struct {
	mu deadlock.Mutex

	serial       string
	core         Core
	latency      time.Duration
	programDelay time.Duration

	key, plaintext, trigger, result device.Register
	done                            device.Register
	hasDone                         bool

	present    bool
	claimed    bool
	configured *bitstream.Info
	mem        map[uint32]byte

	pending  []byte
	readyAt  time.Time
	triggers int
}

// NewBoard creates a powered, unconfigured board
func NewBoard(opts Options) (*Board, error) {
	regs := opts.Registers
	if regs.Len() == 0 {
		regs = device.CW305AES128()
	}
	b := &Board{
		serial:       opts.Serial,
		core:         opts.Core,
		latency:      opts.Latency,
		programDelay: opts.ProgramDelay,
		present:      true,
		mem:          make(map[uint32]byte),
	}
	if b.serial == "" {
		b.serial = "SIM-CW305"
	}
	if b.core == nil {
		b.core = AESCore{}
	}
	if b.latency <= 0 {
		b.latency = DefaultLatency
	}
	if b.programDelay < 0 {
		b.programDelay = 0
	}

	var err error
	for name, dst := range map[string]*device.Register{
		device.RegKey:        &b.key,
		device.RegPlaintext:  &b.plaintext,
		device.RegTrigger:    &b.trigger,
		device.RegCiphertext: &b.result,
	} {
		if *dst, err = regs.Get(name); err != nil {
			return nil, fmt.Errorf("simulated board: %w", err)
		}
	}
	if b.trigger.Direction != device.DirectionTrigger {
		return nil, fmt.Errorf("simulated board: %s is not a trigger register", b.trigger.Name)
	}
	if b.done, b.hasDone = regs.Lookup(device.RegDone); b.hasDone && b.done.Direction != device.DirectionRead {
		return nil, fmt.Errorf("simulated board: %s must be a read register", b.done.Name)
	}
	return b, nil
}

// Link returns a new transport handle for this board
func (b *Board) Link() *Link {
	return &Link{board: b}
}

// Unplug makes the board invisible to new connections
func (b *Board) Unplug() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.present = false
}

// Plug reverses Unplug
func (b *Board) Plug() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.present = true
}

// Info reports the board state
func (b *Board) Info() BoardInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BoardInfo{
		Serial:     b.serial,
		Core:       b.core.Name(),
		Configured: b.configured != nil,
		Bitstream:  b.configured,
		Triggers:   b.triggers,
	}
}

func (b *Board) claim() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.present {
		return fmt.Errorf("%w: no CW305 with serial %s", device.ErrDeviceNotFound, b.serial)
	}
	if b.claimed {
		return fmt.Errorf("%w: %s is held by another session", device.ErrBusy, b.serial)
	}
	b.claimed = true
	return nil
}

func (b *Board) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claimed = false
}

// configure loads a new design; the register file comes up zeroed.
func (b *Board) configure(info bitstream.Info) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configured = &info
	b.mem = make(map[uint32]byte)
	b.pending = nil
}

func (b *Board) write(addr uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.configured == nil {
		return fmt.Errorf("fpga not configured")
	}
	b.settle()

	for i, v := range data {
		b.mem[addr+uint32(i)] = v
	}
	if addr == b.trigger.Address && len(data) == 1 && data[0] == device.TriggerSentinel {
		return b.start()
	}
	return nil
}

func (b *Board) read(addr uint32, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.configured == nil {
		return nil, fmt.Errorf("fpga not configured")
	}
	b.settle()

	out := make([]byte, n)
	for i := range out {
		out[i] = b.mem[addr+uint32(i)]
	}
	return out, nil
}

// start latches the operands and schedules the result. Caller holds mu.
func (b *Board) start() error {
	key := device.FromLittleEndianPlacement(b.load(b.key))
	pt := device.FromLittleEndianPlacement(b.load(b.plaintext))

	out, err := b.core.Encrypt(key, pt)
	if err != nil {
		return fmt.Errorf("core %s: %w", b.core.Name(), err)
	}
	if len(out) != b.result.Width {
		return fmt.Errorf("core %s produced %d bytes for a %d byte result register", b.core.Name(), len(out), b.result.Width)
	}

	b.triggers++
	b.pending = device.ToLittleEndianPlacement(out)
	b.readyAt = time.Now().Add(b.latency)
	b.mem[b.trigger.Address] = 0
	if b.hasDone {
		b.store(b.done, make([]byte, b.done.Width))
	}
	return nil
}

// settle publishes a finished computation. Caller holds mu.
func (b *Board) settle() {
	if b.pending == nil || time.Now().Before(b.readyAt) {
		return
	}
	b.store(b.result, b.pending)
	b.pending = nil
	if b.hasDone {
		flag := make([]byte, b.done.Width)
		flag[0] = 1
		b.store(b.done, flag)
	}
}

func (b *Board) load(r device.Register) []byte {
	out := make([]byte, r.Width)
	for i := range out {
		out[i] = b.mem[r.Address+uint32(i)]
	}
	return out
}

func (b *Board) store(r device.Register, data []byte) {
	for i, v := range data {
		b.mem[r.Address+uint32(i)] = v
	}
}
