package cw305

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/anchorageoss/fpga-aes-harness/bitstream"
	"github.com/anchorageoss/fpga-aes-harness/device"
)

// Link is a connection to a simulated board. It implements device.Transport.
type Link struct {
	board     *Board
	connected bool
	loaded    *bitstream.Info
}

var _ device.Transport = (*Link)(nil)

// Connect claims the board
func (l *Link) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.connected {
		return nil
	}
	if err := l.board.claim(); err != nil {
		return err
	}
	l.connected = true
	return nil
}

// Program loads the bitstream at path. It takes ProgramDelay to complete and
// honors ctx while waiting.
func (l *Link) Program(ctx context.Context, path string) error {
	if !l.connected {
		return fmt.Errorf("link not connected")
	}
	img, err := bitstream.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %v", device.ErrFileNotFound, err)
		}
		return err
	}

	if d := l.board.programDelay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	l.board.configure(img.Info)
	info := img.Info
	l.loaded = &info
	return nil
}

// Bitstream returns the header of the image loaded by the last successful
// Program on this link.
func (l *Link) Bitstream() (bitstream.Info, bool) {
	if l.loaded == nil {
		return bitstream.Info{}, false
	}
	return *l.loaded, true
}

func (l *Link) WriteRegister(ctx context.Context, addr uint32, data []byte) error {
	if !l.connected {
		return fmt.Errorf("link not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.board.write(addr, data)
}

func (l *Link) ReadRegister(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if !l.connected {
		return nil, fmt.Errorf("link not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.board.read(addr, n)
}

// Close releases the board. Safe to call more than once.
func (l *Link) Close() error {
	if !l.connected {
		return nil
	}
	l.connected = false
	l.board.release()
	return nil
}
