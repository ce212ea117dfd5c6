// Package huff compresses whole byte sequences with a static Huffman code
// and stores the result in a self-describing container.
//
// The pipeline is strictly sequential: count symbol frequencies, build the
// tree, derive the code table, pack the codes. Every invocation owns its
// tables; the only state shared between invocations is an optional
// CodebookCache of immutable codebooks.
package huff

import (
	"context"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huff/bitstream"
)

// Config holds configuration for encoders and decoders.
type Config struct {
	Logger        logrus.FieldLogger // Stage logging (nil = discard)
	Cache         *CodebookCache     // Shared codebooks (nil = build per call)
	MaxInputBytes uint64             // Largest original accepted or produced (0 = unlimited)
}

// Option is a functional option for configuring encoders and decoders.
type Option func(*Config)

// WithLogger sets the logger stage progress is reported to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithCodebookCache shares codebooks through cache.
func WithCodebookCache(cache *CodebookCache) Option {
	return func(c *Config) {
		c.Cache = cache
	}
}

// WithMaxInputBytes bounds the original size: encoders refuse larger inputs
// and decoders refuse containers declaring a larger original.
func WithMaxInputBytes(n uint64) Option {
	return func(c *Config) {
		c.MaxInputBytes = n
	}
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}()

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger
	}
	return cfg
}

func (cfg *Config) checkSize(n uint64) error {
	if cfg.MaxInputBytes != 0 && n > cfg.MaxInputBytes {
		return fmt.Errorf("%w: original of %d bytes exceeds limit of %d", ErrInvalidInput, n, cfg.MaxInputBytes)
	}
	return nil
}

// Encoder turns byte sequences into containers. An Encoder holds no
// per-call state and may be used concurrently.
type Encoder struct {
	config Config
}

// NewEncoder creates a new encoder with the given options.
func NewEncoder(opts ...Option) *Encoder {
	return &Encoder{config: newConfig(opts)}
}

// Encode compresses data. ctx is checked between stages and between chunks
// of the two linear passes; on cancellation no container is returned.
func (e *Encoder) Encode(ctx context.Context, data []byte) (*Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.config.checkSize(uint64(len(data))); err != nil {
		return nil, err
	}
	log := e.config.Logger.WithField("op", "compress")

	freqs, err := CountContext(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("count frequencies: %w", err)
	}
	log.WithFields(logrus.Fields{
		"stage":   "analyze",
		"bytes":   len(data),
		"symbols": freqs.Distinct(),
	}).Debug("frequencies counted")

	cb, hit, err := e.config.Cache.codebook(&freqs)
	if err != nil {
		return nil, err
	}
	c := &Container{
		OriginalLen: uint64(len(data)),
		Checksum:    xxhash.Sum64(data),
	}
	if cb.root == nil {
		log.WithField("stage", "build").Debug("empty input, no tree")
		return c, nil
	}
	log.WithFields(logrus.Fields{
		"stage":     "build",
		"leaves":    cb.root.Leaves(),
		"tree_bits": cb.treeBits,
		"cached":    hit,
	}).Debug("codebook ready")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build codebook: %w", err)
	}

	payload, bits, err := packPayload(ctx, cb.table, data)
	if err != nil {
		return nil, err
	}
	if want := cb.EncodedBits(); bits != want {
		return nil, invariantf("packed %d bits, code table accounts for %d", bits, want)
	}
	log.WithFields(logrus.Fields{
		"stage": "pack",
		"bits":  bits,
		"bytes": len(payload),
	}).Debug("payload packed")

	c.Tree = append([]byte(nil), cb.tree...)
	c.TreeBits = cb.treeBits
	c.Payload = payload
	c.PayloadBits = bits
	return c, nil
}

func packPayload(ctx context.Context, table *CodeTable, data []byte) ([]byte, uint64, error) {
	w := bitstream.NewWriter()
	for start := 0; start < len(data); start += scanChunkBytes {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("pack payload: %w", err)
		}
		end := min(start+scanChunkBytes, len(data))
		for i, b := range data[start:end] {
			code := table.codes[b]
			if code.Len == 0 {
				return nil, 0, invariantf("no code for symbol %#02x at offset %d", b, start+i)
			}
			if err := w.WriteBits(code.Bits, code.Len); err != nil {
				return nil, 0, fmt.Errorf("pack payload: %w", err)
			}
		}
	}
	payload, err := w.Finish()
	if err != nil {
		return nil, 0, fmt.Errorf("pack payload: %w", err)
	}
	return payload, w.Len(), nil
}

// Compress encodes data and serializes the container.
func (e *Encoder) Compress(ctx context.Context, data []byte) ([]byte, error) {
	c, err := e.Encode(ctx, data)
	if err != nil {
		return nil, err
	}
	return c.MarshalBinary()
}

// Decoder restores the original bytes from containers. A Decoder holds no
// per-call state and may be used concurrently.
type Decoder struct {
	config Config
}

// NewDecoder creates a new decoder with the given options.
func NewDecoder(opts ...Option) *Decoder {
	return &Decoder{config: newConfig(opts)}
}

// Decompress parses a serialized container and decodes it.
func (d *Decoder) Decompress(ctx context.Context, blob []byte) ([]byte, error) {
	run := d.newRun(ctx)
	run.blob = blob
	return run.run()
}

// Decode decodes an already parsed container.
func (d *Decoder) Decode(ctx context.Context, c *Container) ([]byte, error) {
	if err := validateContainer(c); err != nil {
		return nil, &DecodeError{State: StateReadHeader, Err: corruptf("%v", err)}
	}
	run := d.newRun(ctx)
	run.c = c
	run.state = StateReadTree
	return run.run()
}

// Compress encodes data with default options.
func Compress(ctx context.Context, data []byte) ([]byte, error) {
	return NewEncoder().Compress(ctx, data)
}

// Decompress decodes a serialized container with default options.
func Decompress(ctx context.Context, blob []byte) ([]byte, error) {
	return NewDecoder().Decompress(ctx, blob)
}
