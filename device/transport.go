package device

import "context"

// Transport is the link to a register-mapped accelerator. Implementations
// wrap a USB/JTAG driver (or a simulator); the session is their only caller.
//
// WriteRegister places data[0] at addr, data[1] at addr+1 and so on.
// ReadRegister returns n bytes starting at addr in the same placement.
//
// Connect should fail with an error wrapping ErrDeviceNotFound when nothing
// answers and ErrBusy when another session already holds the device.
// Program should wrap ErrFileNotFound for a missing bitstream.
type Transport interface {
	Connect(ctx context.Context) error
	Program(ctx context.Context, bitstreamPath string) error
	WriteRegister(ctx context.Context, addr uint32, data []byte) error
	ReadRegister(ctx context.Context, addr uint32, n int) ([]byte, error)
	Close() error
}

// RegisterReader is the read side of a Transport, handed to completion
// strategies that poll the device.
type RegisterReader interface {
	ReadRegister(ctx context.Context, addr uint32, n int) ([]byte, error)
}
