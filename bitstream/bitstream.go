// Package bitstream loads FPGA configuration images.
//
// Both Xilinx .bit files (with the design/part/date header written by
// Vivado) and headerless .bin images are accepted. Files may be
// zstd-compressed; compression is detected from the frame magic, not the
// file name.
//
// Load a bitstream and inspect its header:
//
//	img, err := bitstream.Load("cw305_top.bit.zst")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(img.Design, img.Part, img.SHA256)
package bitstream

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// MaxImageSize bounds the decompressed size of a bitstream. The largest
// 7-series parts need well under this.
const MaxImageSize = 64 << 20

var (
	// ErrEmpty is returned for a bitstream without configuration data.
	ErrEmpty = errors.New("bitstream is empty")
	// ErrMalformed is returned when a .bit header is truncated or inconsistent.
	ErrMalformed = errors.New("malformed bitstream header")
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	// First field of every Vivado .bit header: length 9, then this preamble.
	bitPreamble = []byte{0x0F, 0xF0, 0x0F, 0xF0, 0x0F, 0xF0, 0x0F, 0xF0, 0x00}
)

var zstdDecoder *zstd.Decoder

func init() {
	z, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxImageSize), zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

// Info describes a bitstream image
type Info struct {
	Design     string `json:"design,omitempty"`
	Part       string `json:"part,omitempty"`
	Date       string `json:"date,omitempty"`
	Time       string `json:"time,omitempty"`
	Length     int    `json:"length"`
	SHA256     string `json:"sha256"`
	Compressed bool   `json:"compressed"`
	Headerless bool   `json:"headerless"`
}

// Image is a decoded bitstream: header info plus the raw configuration data
type Image struct {
	Info
	Data []byte
}

// Load reads and decodes the bitstream at path. A missing file yields an
// error satisfying errors.Is(err, fs.ErrNotExist).
func Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bitstream: %w", err)
	}
	img, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Parse decodes a bitstream held in memory
func Parse(raw []byte) (*Image, error) {
	compressed := false
	if bytes.HasPrefix(raw, zstdMagic) {
		out, err := zstdDecoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress bitstream: %w", err)
		}
		raw = out
		compressed = true
	}
	if len(raw) > MaxImageSize {
		return nil, fmt.Errorf("bitstream is %d bytes, limit is %d", len(raw), MaxImageSize)
	}

	sum := sha256.Sum256(raw)
	img := &Image{Info: Info{
		SHA256:     hex.EncodeToString(sum[:]),
		Compressed: compressed,
	}}

	if !hasBitHeader(raw) {
		if len(raw) == 0 {
			return nil, ErrEmpty
		}
		img.Headerless = true
		img.Length = len(raw)
		img.Data = raw
		return img, nil
	}

	if err := parseHeader(raw, img); err != nil {
		return nil, err
	}
	if len(img.Data) == 0 {
		return nil, ErrEmpty
	}
	return img, nil
}

func hasBitHeader(raw []byte) bool {
	return len(raw) >= 2+len(bitPreamble) &&
		binary.BigEndian.Uint16(raw) == uint16(len(bitPreamble)) &&
		bytes.Equal(raw[2:2+len(bitPreamble)], bitPreamble)
}

func parseHeader(raw []byte, img *Image) error {
	r := headerReader{buf: raw, off: 2 + len(bitPreamble)}

	// Field count word, always 1.
	if _, err := r.u16(); err != nil {
		return err
	}

	for {
		key, err := r.u8()
		if err != nil {
			return err
		}
		switch key {
		case 'a', 'b', 'c', 'd':
			s, err := r.str()
			if err != nil {
				return err
			}
			switch key {
			case 'a':
				img.Design = s
			case 'b':
				img.Part = s
			case 'c':
				img.Date = s
			case 'd':
				img.Time = s
			}
		case 'e':
			n, err := r.u32()
			if err != nil {
				return err
			}
			if uint64(n) > uint64(len(r.buf)-r.off) {
				return fmt.Errorf("%w: data length %d exceeds remaining %d bytes", ErrMalformed, n, len(r.buf)-r.off)
			}
			img.Length = int(n)
			img.Data = r.buf[r.off : r.off+int(n)]
			return nil
		default:
			return fmt.Errorf("%w: unexpected field %q at offset %d", ErrMalformed, key, r.off-1)
		}
	}
}

type headerReader struct {
	buf []byte
	off int
}

func (r *headerReader) need(n int) error {
	if len(r.buf)-r.off < n {
		return fmt.Errorf("%w: truncated at offset %d", ErrMalformed, r.off)
	}
	return nil
}

func (r *headerReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *headerReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *headerReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *headerReader) str() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return string(bytes.TrimRight(s, "\x00")), nil
}

// Encode builds a .bit image with the given header fields around data.
// The simulator and tests use it to produce realistic bitstreams.
func Encode(design, part, date, clock string, data []byte) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, uint16(len(bitPreamble)))
	b.Write(bitPreamble)
	_ = binary.Write(&b, binary.BigEndian, uint16(1))

	field := func(key byte, s string) {
		b.WriteByte(key)
		_ = binary.Write(&b, binary.BigEndian, uint16(len(s)+1))
		b.WriteString(s)
		b.WriteByte(0)
	}
	field('a', design)
	field('b', part)
	field('c', date)
	field('d', clock)

	b.WriteByte('e')
	_ = binary.Write(&b, binary.BigEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

// Compress zstd-compresses an encoded image
func Compress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}
