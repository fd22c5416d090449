package device

import "github.com/samber/lo"

// ToLittleEndianPlacement converts an operand written most-significant-byte
// first (the way keys and blocks are usually quoted) into the order the
// transport expects: the first byte of the result lands at the register's
// lowest address. The input is not modified.
func ToLittleEndianPlacement(b []byte) []byte {
	return lo.Reverse(append([]byte(nil), b...))
}

// FromLittleEndianPlacement is the inverse of ToLittleEndianPlacement and is
// applied to bytes read back from a result register.
func FromLittleEndianPlacement(b []byte) []byte {
	return lo.Reverse(append([]byte(nil), b...))
}
