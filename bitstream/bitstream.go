// Package bitstream packs and unpacks variable-width bit codes, most
// significant bit first, on top of github.com/icza/bitio.
//
// Both directions keep an exact count of valid bits. A Writer pads the final
// partial byte with zero bits; a Reader refuses to read past the declared bit
// count and rejects non-zero padding, so pad bits can never be mistaken for
// data.
package bitstream

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"
)

var (
	// ErrExhausted is returned when a read would go past the declared bit count.
	ErrExhausted = errors.New("bitstream: exhausted")
	// ErrLengthMismatch indicates the byte length does not match the declared bit count.
	ErrLengthMismatch = errors.New("bitstream: length mismatch")
	// ErrNonzeroPadding indicates set bits after the last valid bit.
	ErrNonzeroPadding = errors.New("bitstream: non-zero padding")
	// ErrClosed is returned when writing to a finished Writer.
	ErrClosed = errors.New("bitstream: writer closed")
)

// MaxCodeBits is the widest value accepted by WriteBits and ReadBits.
const MaxCodeBits = 64

// ByteLen returns the number of bytes needed to hold bits bits.
func ByteLen(bits uint64) uint64 {
	return bits/8 + (bits%8+7)/8
}

// Writer accumulates bits in memory.
type Writer struct {
	buf    bytes.Buffer
	bw     *bitio.Writer
	bits   uint64
	closed bool
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	w := &Writer{}
	w.bw = bitio.NewWriter(&w.buf)
	return w
}

// WriteBits appends the n low bits of v, highest of those bits first.
func (w *Writer) WriteBits(v uint64, n uint8) error {
	if w.closed {
		return ErrClosed
	}
	if n == 0 {
		return nil
	}
	if n > MaxCodeBits {
		return fmt.Errorf("bitstream: code width %d exceeds %d", n, MaxCodeBits)
	}
	if n < MaxCodeBits {
		v &= 1<<n - 1
	}
	if err := w.bw.WriteBits(v, n); err != nil {
		return err
	}
	w.bits += uint64(n)
	return nil
}

// WriteBit appends a single bit.
func (w *Writer) WriteBit(b bool) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.bw.WriteBool(b); err != nil {
		return err
	}
	w.bits++
	return nil
}

// Len reports the number of valid bits written so far.
func (w *Writer) Len() uint64 {
	return w.bits
}

// Finish pads the last partial byte with zeros and returns the packed bytes.
// The Writer cannot be written to afterwards; calling Finish again returns
// the same bytes.
func (w *Writer) Finish() ([]byte, error) {
	if !w.closed {
		if err := w.bw.Close(); err != nil {
			return nil, err
		}
		w.closed = true
	}
	out := w.buf.Bytes()
	if uint64(len(out)) != ByteLen(w.bits) {
		return nil, fmt.Errorf("%w: wrote %d bytes for %d bits", ErrLengthMismatch, len(out), w.bits)
	}
	return out, nil
}

// Reader yields exactly the declared number of bits from packed bytes.
type Reader struct {
	br        *bitio.Reader
	remaining uint64
	consumed  uint64
}

// NewReader validates that data holds exactly bits bits with zero padding
// and returns a Reader positioned at the first bit.
func NewReader(data []byte, bits uint64) (*Reader, error) {
	if uint64(len(data)) != ByteLen(bits) {
		return nil, fmt.Errorf("%w: have %d bytes, %d bits need %d", ErrLengthMismatch, len(data), bits, ByteLen(bits))
	}
	if pad := uint(bits % 8); pad != 0 {
		last := data[len(data)-1]
		if last&(byte(0xFF)>>pad) != 0 {
			return nil, fmt.Errorf("%w: last byte %#02x with %d valid bits", ErrNonzeroPadding, last, pad)
		}
	}
	return &Reader{
		br:        bitio.NewReader(bytes.NewReader(data)),
		remaining: bits,
	}, nil
}

// ReadBit returns the next bit.
func (r *Reader) ReadBit() (bool, error) {
	if r.remaining == 0 {
		return false, ErrExhausted
	}
	b, err := r.br.ReadBool()
	if err != nil {
		return false, err
	}
	r.remaining--
	r.consumed++
	return b, nil
}

// ReadBits returns the next n bits as the low bits of the result.
func (r *Reader) ReadBits(n uint8) (uint64, error) {
	if n > MaxCodeBits {
		return 0, fmt.Errorf("bitstream: code width %d exceeds %d", n, MaxCodeBits)
	}
	if uint64(n) > r.remaining {
		return 0, ErrExhausted
	}
	if n == 0 {
		return 0, nil
	}
	v, err := r.br.ReadBits(n)
	if err != nil {
		return 0, err
	}
	r.remaining -= uint64(n)
	r.consumed += uint64(n)
	return v, nil
}

// Remaining reports how many valid bits are left.
func (r *Reader) Remaining() uint64 {
	return r.remaining
}

// Consumed reports how many bits have been read.
func (r *Reader) Consumed() uint64 {
	return r.consumed
}
