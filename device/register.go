package device

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Direction describes how the host may access a register
type Direction uint8

const (
	DirectionWrite Direction = iota + 1
	DirectionRead
	DirectionTrigger
)

// String converts Direction to its profile spelling
func (d Direction) String() string {
	switch d {
	case DirectionWrite:
		return "write"
	case DirectionRead:
		return "read"
	case DirectionTrigger:
		return "trigger"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ParseDirection parses the profile spelling of a Direction
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "write", "w":
		return DirectionWrite, nil
	case "read", "r":
		return DirectionRead, nil
	case "trigger", "trig":
		return DirectionTrigger, nil
	default:
		return 0, fmt.Errorf("unknown register direction %q", s)
	}
}

// Register is a named, fixed-width slot in device memory
type Register struct {
	Name      string
	Address   uint32
	Width     int
	Direction Direction
}

// String formats the register as name@0xADDR[width]
func (r Register) String() string {
	return fmt.Sprintf("%s@0x%03X[%d]", r.Name, r.Address, r.Width)
}

func (r Register) end() uint32 {
	return r.Address + uint32(r.Width)
}

// Standard register names used by the CW305 AES-128 bitstream.
const (
	RegKey        = "key"
	RegPlaintext  = "plaintext"
	RegTrigger    = "trigger"
	RegCiphertext = "ciphertext"
	RegDone       = "done"
)

// TriggerSentinel is the byte written to the trigger register to start a computation.
const TriggerSentinel byte = 0x01

// RegisterMap is an immutable, validated set of registers for one device variant.
// The zero value is empty and unusable; build one with NewRegisterMap.
type RegisterMap struct {
	regs   []Register
	byName map[string]Register
}

// NewRegisterMap validates regs and returns a RegisterMap.
//
// A valid map has unique non-empty names, positive widths, exactly one
// trigger register of width 1, at least one write and one read register,
// and no overlapping address ranges.
func NewRegisterMap(regs ...Register) (RegisterMap, error) {
	if len(regs) == 0 {
		return RegisterMap{}, fmt.Errorf("register map is empty")
	}

	byName := lo.KeyBy(regs, func(r Register) string { return r.Name })
	if len(byName) != len(regs) {
		return RegisterMap{}, fmt.Errorf("register map has duplicate register names")
	}

	for _, r := range regs {
		if r.Name == "" {
			return RegisterMap{}, fmt.Errorf("register at 0x%X has no name", r.Address)
		}
		if r.Width <= 0 {
			return RegisterMap{}, fmt.Errorf("register %s has invalid width %d", r.Name, r.Width)
		}
		if r.Direction < DirectionWrite || r.Direction > DirectionTrigger {
			return RegisterMap{}, fmt.Errorf("register %s has invalid direction %d", r.Name, r.Direction)
		}
	}

	triggers := lo.Filter(regs, func(r Register, _ int) bool { return r.Direction == DirectionTrigger })
	if len(triggers) != 1 {
		return RegisterMap{}, fmt.Errorf("register map needs exactly one trigger register, got %d", len(triggers))
	}
	if triggers[0].Width != 1 {
		return RegisterMap{}, fmt.Errorf("trigger register %s must be 1 byte wide, got %d", triggers[0].Name, triggers[0].Width)
	}
	if lo.CountBy(regs, func(r Register) bool { return r.Direction == DirectionWrite }) == 0 {
		return RegisterMap{}, fmt.Errorf("register map has no write registers")
	}
	if lo.CountBy(regs, func(r Register) bool { return r.Direction == DirectionRead }) == 0 {
		return RegisterMap{}, fmt.Errorf("register map has no read registers")
	}

	sorted := append([]Register(nil), regs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Address < sorted[i-1].end() {
			return RegisterMap{}, fmt.Errorf("registers %s and %s overlap", sorted[i-1], sorted[i])
		}
	}

	return RegisterMap{
		regs:   append([]Register(nil), regs...),
		byName: byName,
	}, nil
}

// MustRegisterMap is NewRegisterMap that panics on an invalid map. Use only
// for maps that are fixed at compile time.
func MustRegisterMap(regs ...Register) RegisterMap {
	m, err := NewRegisterMap(regs...)
	if err != nil {
		panic(err)
	}
	return m
}

// CW305AES128 returns the register map of the CW305 AES-128 reference bitstream
func CW305AES128() RegisterMap {
	return MustRegisterMap(
		Register{Name: RegKey, Address: 0x500, Width: 16, Direction: DirectionWrite},
		Register{Name: RegPlaintext, Address: 0x600, Width: 16, Direction: DirectionWrite},
		Register{Name: RegTrigger, Address: 0x440, Width: 1, Direction: DirectionTrigger},
		Register{Name: RegCiphertext, Address: 0x200, Width: 16, Direction: DirectionRead},
	)
}

// Lookup returns the register with the given name
func (m RegisterMap) Lookup(name string) (Register, bool) {
	r, ok := m.byName[name]
	return r, ok
}

// Get returns the named register or an error wrapping ErrUnknownRegister
func (m RegisterMap) Get(name string) (Register, error) {
	r, ok := m.byName[name]
	if !ok {
		return Register{}, fmt.Errorf("%w: %s", ErrUnknownRegister, name)
	}
	return r, nil
}

// Registers returns all registers in declaration order
func (m RegisterMap) Registers() []Register {
	return append([]Register(nil), m.regs...)
}

// Operands returns the write registers in declaration order
func (m RegisterMap) Operands() []Register {
	return lo.Filter(m.regs, func(r Register, _ int) bool { return r.Direction == DirectionWrite })
}

// Results returns the read registers in declaration order
func (m RegisterMap) Results() []Register {
	return lo.Filter(m.regs, func(r Register, _ int) bool { return r.Direction == DirectionRead })
}

// Trigger returns the trigger register
func (m RegisterMap) Trigger() Register {
	for _, r := range m.regs {
		if r.Direction == DirectionTrigger {
			return r
		}
	}
	return Register{}
}

// Contains reports whether r is exactly one of the map's registers
func (m RegisterMap) Contains(r Register) bool {
	got, ok := m.byName[r.Name]
	return ok && got == r
}

// Len returns the number of registers
func (m RegisterMap) Len() int {
	return len(m.regs)
}
