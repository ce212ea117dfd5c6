package huff

import (
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// scanChunkBytes is how many input bytes are counted between cancellation checks.
const scanChunkBytes = 1 << 20

// Symbols is the size of the byte alphabet.
const Symbols = 256

// Frequencies holds the occurrence count of every byte value.
type Frequencies [Symbols]uint64

// Count tallies data in a single pass.
func Count(data []byte) Frequencies {
	var f Frequencies
	f.add(data)
	return f
}

// CountContext is Count with a ctx check between fixed-size chunks.
func CountContext(ctx context.Context, data []byte) (Frequencies, error) {
	var f Frequencies
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return Frequencies{}, err
		}
		n := min(len(data), scanChunkBytes)
		f.add(data[:n])
		data = data[n:]
	}
	return f, nil
}

func (f *Frequencies) add(data []byte) {
	for _, b := range data {
		f[b]++
	}
}

// Distinct returns the number of symbols with a nonzero count.
func (f *Frequencies) Distinct() int {
	n := 0
	for _, c := range f {
		if c != 0 {
			n++
		}
	}
	return n
}

// Total returns the sum of all counts.
func (f *Frequencies) Total() uint64 {
	var total uint64
	for _, c := range f {
		total += c
	}
	return total
}

// fingerprint hashes the table for codebook cache lookups.
func (f *Frequencies) fingerprint() uint64 {
	var buf [Symbols * 8]byte
	for i, c := range f {
		binary.LittleEndian.PutUint64(buf[i*8:], c)
	}
	return xxhash.Sum64(buf[:])
}
