package huff

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huff/bitstream"
)

// DecodeState is a step of the decoder.
type DecodeState uint8

// Decoding moves ReadHeader -> ReadTree -> ReadBits -> Done; any violation
// moves to Failed and discards the output.
const (
	StateReadHeader DecodeState = iota
	StateReadTree
	StateReadBits
	StateDone
	StateFailed
)

func (s DecodeState) String() string {
	switch s {
	case StateReadHeader:
		return "read header"
	case StateReadTree:
		return "read tree"
	case StateReadBits:
		return "read bits"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("DecodeState(%d)", uint8(s))
	}
}

// DecodeError records the state a decode failed in. It unwraps to one of
// the package error kinds or to a context error.
type DecodeError struct {
	State DecodeState
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.State, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type decodeRun struct {
	ctx    context.Context
	config *Config
	log    logrus.FieldLogger

	state DecodeState
	blob  []byte
	c     *Container
	root  *Node
	out   []byte
}

func (d *Decoder) newRun(ctx context.Context) *decodeRun {
	return &decodeRun{
		ctx:    ctx,
		config: &d.config,
		log:    d.config.Logger.WithField("op", "decompress"),
		state:  StateReadHeader,
	}
}

func (r *decodeRun) run() ([]byte, error) {
	for {
		var err error
		switch r.state {
		case StateReadHeader:
			err = r.readHeader()
		case StateReadTree:
			err = r.readTree()
		case StateReadBits:
			err = r.readBits()
		case StateDone:
			return r.out, nil
		default:
			err = invariantf("decoder in state %v", r.state)
		}
		if err != nil {
			failed := r.state
			r.state = StateFailed
			r.out = nil
			return nil, &DecodeError{State: failed, Err: err}
		}
	}
}

func (r *decodeRun) readHeader() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	c := &Container{}
	if err := c.UnmarshalBinary(r.blob); err != nil {
		return err
	}
	r.c = c
	r.log.WithFields(logrus.Fields{
		"stage":        r.state.String(),
		"original_len": c.OriginalLen,
		"tree_bits":    c.TreeBits,
		"payload_bits": c.PayloadBits,
	}).Debug("header parsed")
	r.state = StateReadTree
	return nil
}

func (r *decodeRun) readTree() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if err := r.config.checkSize(r.c.OriginalLen); err != nil {
		return err
	}
	if r.c.OriginalLen == 0 {
		r.state = StateReadBits
		return nil
	}
	root, hit, err := r.config.Cache.tree(r.c.Tree, r.c.TreeBits)
	if err != nil {
		return err
	}
	r.root = root
	r.log.WithFields(logrus.Fields{
		"stage":  r.state.String(),
		"leaves": root.Leaves(),
		"cached": hit,
	}).Debug("tree rebuilt")
	r.state = StateReadBits
	return nil
}

func (r *decodeRun) readBits() error {
	c := r.c
	out := make([]byte, 0, c.OriginalLen)
	if c.OriginalLen > 0 {
		br, err := bitstream.NewReader(c.Payload, c.PayloadBits)
		if err != nil {
			return corruptf("payload section: %v", err)
		}
		for i := uint64(0); i < c.OriginalLen; i++ {
			if i%scanChunkBytes == 0 {
				if err := r.ctx.Err(); err != nil {
					return err
				}
			}
			sym, err := walk(r.root, br)
			if err != nil {
				if errors.Is(err, bitstream.ErrExhausted) {
					return corruptf("payload exhausted after %d of %d symbols", i, c.OriginalLen)
				}
				return err
			}
			out = append(out, sym)
		}
		if br.Remaining() != 0 {
			return corruptf("%d payload bits left after %d symbols", br.Remaining(), c.OriginalLen)
		}
	}
	if sum := xxhash.Sum64(out); sum != c.Checksum {
		return corruptf("checksum mismatch: have %#016x, header says %#016x", sum, c.Checksum)
	}
	r.log.WithFields(logrus.Fields{
		"stage": r.state.String(),
		"bytes": len(out),
	}).Debug("payload decoded")
	r.out = out
	r.state = StateDone
	return nil
}

// walk follows bits from root to a leaf and returns its symbol.
func walk(root *Node, br *bitstream.Reader) (byte, error) {
	n := root
	for !n.Leaf() {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit {
			n = n.right
		} else {
			n = n.left
		}
		if n == nil {
			return 0, invariantf("walk fell off the tree after %d bits", br.Consumed())
		}
	}
	return n.symbol, nil
}
